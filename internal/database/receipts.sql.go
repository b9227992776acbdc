package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertReceipt = `
INSERT INTO receipts (
    receipt_number, payment_id, payment_ref, policy_number, policy_ref,
    amount, currency, receipt_date, customer_name, customer_email,
    payment_method, receipt_status, description, import_batch_id
) VALUES (
    $1, $2, $3, $4, $5,
    $6, $7, $8, $9, $10,
    $11, $12, $13, $14
)
RETURNING id
`

type InsertReceiptParams struct {
	ReceiptNumber string
	PaymentID     string
	PaymentRef    pgtype.Int8
	PolicyNumber  string
	PolicyRef     pgtype.Int8
	Amount        pgtype.Numeric
	Currency      string
	ReceiptDate   pgtype.Date
	CustomerName  pgtype.Text
	CustomerEmail pgtype.Text
	PaymentMethod pgtype.Text
	ReceiptStatus string
	Description   pgtype.Text
	ImportBatchID pgtype.UUID
}

func (q *Queries) InsertReceipt(ctx context.Context, arg InsertReceiptParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertReceipt,
		arg.ReceiptNumber,
		arg.PaymentID,
		arg.PaymentRef,
		arg.PolicyNumber,
		arg.PolicyRef,
		arg.Amount,
		arg.Currency,
		arg.ReceiptDate,
		arg.CustomerName,
		arg.CustomerEmail,
		arg.PaymentMethod,
		arg.ReceiptStatus,
		arg.Description,
		arg.ImportBatchID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getReceiptIDByReceiptNumber = `
SELECT id FROM receipts WHERE receipt_number = $1 AND deleted_at IS NULL
`

func (q *Queries) GetReceiptIDByReceiptNumber(ctx context.Context, receiptNumber string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getReceiptIDByReceiptNumber, receiptNumber).Scan(&id)
	return id, err
}
