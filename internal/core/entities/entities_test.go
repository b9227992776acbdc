package entities

import (
	"testing"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUsState(t *testing.T) {
	tests := map[string]string{
		"California":           "CA",
		" new york ":           "NY",
		"tx":                   "TX",
		"District of Columbia": "DC",
		"Ontario":              "Ontario",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeUsState(in), in)
	}
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "credit_card", NormalizeToken("Credit Card"))
	assert.Equal(t, "bank_transfer", NormalizeToken(" bank-transfer "))
	assert.Equal(t, "auto", NormalizeToken("AUTO"))
}

func TestNormalizeClaimStatus(t *testing.T) {
	tests := map[string]string{
		"Submitted":    "filed",
		"In Review":    "under_review",
		"pending":      "under_review",
		"Settled":      "approved",
		"Rejected":     "denied",
		"Under Review": "under_review",
		"weird":        "weird",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeClaimStatus(in), in)
	}
}

func TestNormalizePolicyStatus(t *testing.T) {
	assert.Equal(t, "expired", NormalizePolicyStatus("Lapsed"))
	assert.Equal(t, "cancelled", NormalizePolicyStatus("Canceled"))
	assert.Equal(t, "active", NormalizePolicyStatus("Active"))
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, []string{"agents", "customers", "policies", "payments", "receipts", "claims"}, reg.Keys())

	customers, ok := reg.Get("customers")
	require.True(t, ok)
	assert.Equal(t, []string{"customer_id", "first_name", "last_name", "email"}, customers.Info.Required)
	assert.Contains(t, customers.Info.Columns, "primary_agent_id")

	claims, ok := reg.Get("claims")
	require.True(t, ok)
	assert.Equal(t, []string{"claim_number", "policy_number", "claim_type", "claim_amount", "incident_date", "description"}, claims.Info.Required)
}

// Every reference must name a registered entity that imports earlier.
func TestReferencesPointBackwards(t *testing.T) {
	reg := NewRegistry()
	for _, def := range reg.All() {
		for _, ref := range def.References {
			target, ok := reg.Get(ref.Entity)
			require.True(t, ok, "%s references unknown entity %s", def.Info.Key, ref.Entity)
			assert.Less(t, target.Info.Order, def.Info.Order, "%s -> %s", def.Info.Key, ref.Entity)

			_, ok = def.Field(ref.Field)
			assert.True(t, ok, "%s reference column %s is not a field", def.Info.Key, ref.Field)
		}
	}
}

func TestClaimsBuild(t *testing.T) {
	def := Claims()
	v := core.NewRowValidator(def.Fields, func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) })

	rec, err := v.Validate(core.Row{
		"claim_number":  "CL-1",
		"policy_number": "POL-1",
		"claim_type":    "Auto Collision",
		"claim_amount":  "$2,500.00",
		"incident_date": "05/20/2024",
		"status":        "Submitted",
		"description":   "Rear-ended at a light",
	})
	require.NoError(t, err)

	refs := core.ResolvedRefs{"policy_number": pgtype.Int8{Int64: 9, Valid: true}}
	params, err := def.Build(rec, refs, pgtype.UUID{})
	require.NoError(t, err)

	p := params.(db.InsertClaimParams)
	assert.Equal(t, "CL-1", p.ClaimNumber)
	assert.Equal(t, int64(9), p.PolicyRef.Int64)
	assert.Equal(t, "auto_collision", p.ClaimType)
	assert.Equal(t, "filed", p.Status)
	assert.Equal(t, "medium", p.Priority)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, 2500.0, core.NumericFloat(p.ClaimAmount))
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), p.IncidentDate.Time)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), p.ClaimDate.Time)
	assert.False(t, p.ApprovedAmount.Valid)
	assert.False(t, p.IsFraudulent)
}

func TestCustomersBuildFullName(t *testing.T) {
	def := Customers()
	v := core.NewRowValidator(def.Fields, nil)

	rec, err := v.Validate(core.Row{
		"customer_id": "C-1",
		"first_name":  "Ann",
		"last_name":   "Lee",
		"email":       "ann@example.com",
		"state":       "oregon",
		"is_vip":      "Y",
	})
	require.NoError(t, err)

	params, err := def.Build(rec, core.ResolvedRefs{}, pgtype.UUID{})
	require.NoError(t, err)

	p := params.(db.InsertCustomerParams)
	assert.Equal(t, "Ann Lee", p.FullName)
	assert.Equal(t, "OR", p.State.String)
	assert.True(t, p.IsVip)
	assert.False(t, p.AgentRef.Valid)
	assert.Equal(t, "individual", p.CustomerType)
}
