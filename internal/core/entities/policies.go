package entities

import (
	"context"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// Policies is the policy entity. Every policy must reference an existing
// customer and agent.
func Policies() core.EntityDefinition {
	return core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "policies",
			Label:      "Policies",
			Table:      "policies",
			NaturalKey: "policy_number",
			Order:      orderPolicies,
		},
		Fields: []core.FieldSpec{
			{Name: "policy_number", Type: core.FieldText, Required: true},
			{Name: "policy_type", Type: core.FieldText, Required: true, Normalizer: NormalizeToken},
			{Name: "customer_id", Type: core.FieldText, Required: true},
			{Name: "agent_id", Type: core.FieldText, Required: true},
			{Name: "premium_amount", Type: core.FieldNumeric, Required: true, Positive: true},
			{Name: "coverage_amount", Type: core.FieldNumeric, Required: true, Positive: true},
			{Name: "deductible", Type: core.FieldNumeric, Default: "0", NonNegative: true},
			currencyField,
			{Name: "effective_date", Type: core.FieldDate, Required: true},
			{Name: "expiration_date", Type: core.FieldDate, Required: true},
			{Name: "renewal_date", Type: core.FieldDate},
			{Name: "status", Type: core.FieldEnum, EnumValues: []string{"active", "expired", "cancelled"}, Default: "active", Normalizer: NormalizePolicyStatus},
			{Name: "payment_frequency", Type: core.FieldEnum, EnumValues: []string{"monthly", "quarterly", "semi_annually", "annually"}, Default: "annually", Normalizer: NormalizeToken},
			{Name: "description", Type: core.FieldText},
			{Name: "auto_renewal", Type: core.FieldBool, Default: "false"},
		},
		References: []core.ReferenceSpec{
			{Field: "customer_id", Entity: "customers"},
			{Field: "agent_id", Entity: "agents"},
		},
		Build: func(rec core.Record, refs core.ResolvedRefs, batchID pgtype.UUID) (any, error) {
			return db.InsertPolicyParams{
				PolicyNumber:     rec.Text("policy_number"),
				PolicyType:       rec.Text("policy_type"),
				PremiumAmount:    rec.PgNumeric("premium_amount"),
				CoverageAmount:   rec.PgNumeric("coverage_amount"),
				Deductible:       rec.PgNumeric("deductible"),
				Currency:         rec.Text("currency"),
				EffectiveDate:    rec.PgDate("effective_date"),
				ExpirationDate:   rec.PgDate("expiration_date"),
				RenewalDate:      rec.PgDate("renewal_date"),
				CustomerID:       rec.Text("customer_id"),
				CustomerRef:      refs.ID("customer_id"),
				AgentID:          rec.Text("agent_id"),
				AgentRef:         refs.ID("agent_id"),
				Status:           rec.Text("status"),
				PaymentFrequency: rec.Text("payment_frequency"),
				Description:      rec.PgText("description"),
				AutoRenewal:      flag(rec, "auto_renewal"),
				ImportBatchID:    batchID,
			}, nil
		},
		Insert: func(ctx context.Context, dbtx core.DBTX, params any) (int64, error) {
			return db.New(dbtx).InsertPolicy(ctx, params.(db.InsertPolicyParams))
		},
		Lookup: func(ctx context.Context, dbtx core.DBTX, key string) (int64, error) {
			return db.New(dbtx).GetPolicyIDByPolicyNumber(ctx, key)
		},
	}
}
