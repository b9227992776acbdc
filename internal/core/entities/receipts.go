package entities

import (
	"context"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// Receipts is the receipt entity. A receipt names both the payment it
// acknowledges and that payment's policy.
func Receipts() core.EntityDefinition {
	return core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "receipts",
			Label:      "Receipts",
			Table:      "receipts",
			NaturalKey: "receipt_number",
			Order:      orderReceipts,
		},
		Fields: []core.FieldSpec{
			{Name: "receipt_number", Type: core.FieldText, Required: true},
			{Name: "payment_id", Type: core.FieldText, Required: true},
			{Name: "policy_number", Type: core.FieldText, Required: true},
			{Name: "amount", Type: core.FieldNumeric, Required: true, Positive: true},
			currencyField,
			{Name: "receipt_date", Type: core.FieldDate, DefaultNow: true},
			{Name: "customer_name", Type: core.FieldText},
			{Name: "customer_email", Type: core.FieldEmail},
			{Name: "payment_method", Type: core.FieldText, Normalizer: NormalizeToken},
			{Name: "receipt_status", Type: core.FieldEnum, EnumValues: []string{"generated", "sent", "viewed"}, Default: "generated", Normalizer: NormalizeToken},
			{Name: "description", Type: core.FieldText},
		},
		References: []core.ReferenceSpec{
			{Field: "payment_id", Entity: "payments"},
			{Field: "policy_number", Entity: "policies"},
		},
		Build: func(rec core.Record, refs core.ResolvedRefs, batchID pgtype.UUID) (any, error) {
			return db.InsertReceiptParams{
				ReceiptNumber: rec.Text("receipt_number"),
				PaymentID:     rec.Text("payment_id"),
				PaymentRef:    refs.ID("payment_id"),
				PolicyNumber:  rec.Text("policy_number"),
				PolicyRef:     refs.ID("policy_number"),
				Amount:        rec.PgNumeric("amount"),
				Currency:      rec.Text("currency"),
				ReceiptDate:   rec.PgDate("receipt_date"),
				CustomerName:  rec.PgText("customer_name"),
				CustomerEmail: rec.PgText("customer_email"),
				PaymentMethod: rec.PgText("payment_method"),
				ReceiptStatus: rec.Text("receipt_status"),
				Description:   rec.PgText("description"),
				ImportBatchID: batchID,
			}, nil
		},
		Insert: func(ctx context.Context, dbtx core.DBTX, params any) (int64, error) {
			return db.New(dbtx).InsertReceipt(ctx, params.(db.InsertReceiptParams))
		},
		Lookup: func(ctx context.Context, dbtx core.DBTX, key string) (int64, error) {
			return db.New(dbtx).GetReceiptIDByReceiptNumber(ctx, key)
		},
	}
}
