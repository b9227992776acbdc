package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertPayment = `
INSERT INTO payments (
    payment_id, transaction_reference, amount, currency, payment_method, payment_status,
    policy_number, policy_ref, payment_date, due_date, processing_fee, description,
    is_recurring, import_batch_id
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9, $10, $11, $12,
    $13, $14
)
RETURNING id
`

type InsertPaymentParams struct {
	PaymentID            string
	TransactionReference pgtype.Text
	Amount               pgtype.Numeric
	Currency             string
	PaymentMethod        string
	PaymentStatus        string
	PolicyNumber         string
	PolicyRef            pgtype.Int8
	PaymentDate          pgtype.Date
	DueDate              pgtype.Date
	ProcessingFee        pgtype.Numeric
	Description          pgtype.Text
	IsRecurring          bool
	ImportBatchID        pgtype.UUID
}

func (q *Queries) InsertPayment(ctx context.Context, arg InsertPaymentParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertPayment,
		arg.PaymentID,
		arg.TransactionReference,
		arg.Amount,
		arg.Currency,
		arg.PaymentMethod,
		arg.PaymentStatus,
		arg.PolicyNumber,
		arg.PolicyRef,
		arg.PaymentDate,
		arg.DueDate,
		arg.ProcessingFee,
		arg.Description,
		arg.IsRecurring,
		arg.ImportBatchID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getPaymentIDByPaymentID = `
SELECT id FROM payments WHERE payment_id = $1 AND deleted_at IS NULL
`

func (q *Queries) GetPaymentIDByPaymentID(ctx context.Context, paymentID string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getPaymentIDByPaymentID, paymentID).Scan(&id)
	return id, err
}
