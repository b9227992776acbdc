package entities

import (
	"context"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// Payments is the payment entity.
func Payments() core.EntityDefinition {
	return core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "payments",
			Label:      "Payments",
			Table:      "payments",
			NaturalKey: "payment_id",
			Order:      orderPayments,
		},
		Fields: []core.FieldSpec{
			{Name: "payment_id", Type: core.FieldText, Required: true},
			{Name: "policy_number", Type: core.FieldText, Required: true},
			{Name: "amount", Type: core.FieldNumeric, Required: true, Positive: true},
			currencyField,
			{Name: "payment_method", Type: core.FieldText, Required: true, Normalizer: NormalizeToken},
			{Name: "payment_status", Type: core.FieldEnum, EnumValues: []string{"pending", "completed", "failed", "refunded"}, Default: "pending", Normalizer: NormalizeToken},
			{Name: "transaction_reference", Type: core.FieldText},
			{Name: "payment_date", Type: core.FieldDate, DefaultNow: true},
			{Name: "due_date", Type: core.FieldDate},
			{Name: "processing_fee", Type: core.FieldNumeric, Default: "0", NonNegative: true},
			{Name: "description", Type: core.FieldText},
			{Name: "is_recurring", Type: core.FieldBool, Default: "false"},
		},
		References: []core.ReferenceSpec{
			{Field: "policy_number", Entity: "policies"},
		},
		Build: func(rec core.Record, refs core.ResolvedRefs, batchID pgtype.UUID) (any, error) {
			return db.InsertPaymentParams{
				PaymentID:            rec.Text("payment_id"),
				TransactionReference: rec.PgText("transaction_reference"),
				Amount:               rec.PgNumeric("amount"),
				Currency:             rec.Text("currency"),
				PaymentMethod:        rec.Text("payment_method"),
				PaymentStatus:        rec.Text("payment_status"),
				PolicyNumber:         rec.Text("policy_number"),
				PolicyRef:            refs.ID("policy_number"),
				PaymentDate:          rec.PgDate("payment_date"),
				DueDate:              rec.PgDate("due_date"),
				ProcessingFee:        rec.PgNumeric("processing_fee"),
				Description:          rec.PgText("description"),
				IsRecurring:          flag(rec, "is_recurring"),
				ImportBatchID:        batchID,
			}, nil
		},
		Insert: func(ctx context.Context, dbtx core.DBTX, params any) (int64, error) {
			return db.New(dbtx).InsertPayment(ctx, params.(db.InsertPaymentParams))
		},
		Lookup: func(ctx context.Context, dbtx core.DBTX, key string) (int64, error) {
			return db.New(dbtx).GetPaymentIDByPaymentID(ctx, key)
		},
	}
}
