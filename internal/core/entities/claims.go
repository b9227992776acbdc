package entities

import (
	"context"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// Claims is the claim entity.
func Claims() core.EntityDefinition {
	return core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "claims",
			Label:      "Claims",
			Table:      "claims",
			NaturalKey: "claim_number",
			Order:      orderClaims,
		},
		Fields: []core.FieldSpec{
			{Name: "claim_number", Type: core.FieldText, Required: true},
			{Name: "policy_number", Type: core.FieldText, Required: true},
			{Name: "claim_type", Type: core.FieldText, Required: true, Normalizer: NormalizeToken},
			{Name: "claim_amount", Type: core.FieldNumeric, Required: true, Positive: true},
			{Name: "approved_amount", Type: core.FieldNumeric, NonNegative: true},
			currencyField,
			{Name: "incident_date", Type: core.FieldDate, Required: true},
			{Name: "claim_date", Type: core.FieldDate, DefaultNow: true},
			{Name: "status", Type: core.FieldEnum, EnumValues: []string{"filed", "under_review", "approved", "denied"}, Default: "filed", Normalizer: NormalizeClaimStatus},
			{Name: "priority", Type: core.FieldEnum, EnumValues: []string{"low", "medium", "high", "urgent"}, Default: "medium", Normalizer: NormalizeToken},
			{Name: "description", Type: core.FieldText, Required: true},
			{Name: "incident_location", Type: core.FieldText},
			{Name: "adjuster_id", Type: core.FieldText},
			{Name: "is_fraudulent", Type: core.FieldBool, Default: "false"},
		},
		References: []core.ReferenceSpec{
			{Field: "policy_number", Entity: "policies"},
		},
		Build: func(rec core.Record, refs core.ResolvedRefs, batchID pgtype.UUID) (any, error) {
			return db.InsertClaimParams{
				ClaimNumber:      rec.Text("claim_number"),
				PolicyNumber:     rec.Text("policy_number"),
				PolicyRef:        refs.ID("policy_number"),
				ClaimType:        rec.Text("claim_type"),
				ClaimAmount:      rec.PgNumeric("claim_amount"),
				ApprovedAmount:   rec.PgNumeric("approved_amount"),
				Currency:         rec.Text("currency"),
				IncidentDate:     rec.PgDate("incident_date"),
				ClaimDate:        rec.PgDate("claim_date"),
				Status:           rec.Text("status"),
				Priority:         rec.Text("priority"),
				Description:      rec.Text("description"),
				IncidentLocation: rec.PgText("incident_location"),
				AdjusterID:       rec.PgText("adjuster_id"),
				IsFraudulent:     flag(rec, "is_fraudulent"),
				ImportBatchID:    batchID,
			}, nil
		},
		Insert: func(ctx context.Context, dbtx core.DBTX, params any) (int64, error) {
			return db.New(dbtx).InsertClaim(ctx, params.(db.InsertClaimParams))
		},
		Lookup: func(ctx context.Context, dbtx core.DBTX, key string) (int64, error) {
			return db.New(dbtx).GetClaimIDByClaimNumber(ctx, key)
		},
	}
}
