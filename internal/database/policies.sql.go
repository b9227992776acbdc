package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertPolicy = `
INSERT INTO policies (
    policy_number, policy_type, premium_amount, coverage_amount, deductible, currency,
    effective_date, expiration_date, renewal_date,
    customer_id, customer_ref, agent_id, agent_ref,
    status, payment_frequency, description, auto_renewal, import_batch_id
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9,
    $10, $11, $12, $13,
    $14, $15, $16, $17, $18
)
RETURNING id
`

type InsertPolicyParams struct {
	PolicyNumber     string
	PolicyType       string
	PremiumAmount    pgtype.Numeric
	CoverageAmount   pgtype.Numeric
	Deductible       pgtype.Numeric
	Currency         string
	EffectiveDate    pgtype.Date
	ExpirationDate   pgtype.Date
	RenewalDate      pgtype.Date
	CustomerID       string
	CustomerRef      pgtype.Int8
	AgentID          string
	AgentRef         pgtype.Int8
	Status           string
	PaymentFrequency string
	Description      pgtype.Text
	AutoRenewal      bool
	ImportBatchID    pgtype.UUID
}

func (q *Queries) InsertPolicy(ctx context.Context, arg InsertPolicyParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertPolicy,
		arg.PolicyNumber,
		arg.PolicyType,
		arg.PremiumAmount,
		arg.CoverageAmount,
		arg.Deductible,
		arg.Currency,
		arg.EffectiveDate,
		arg.ExpirationDate,
		arg.RenewalDate,
		arg.CustomerID,
		arg.CustomerRef,
		arg.AgentID,
		arg.AgentRef,
		arg.Status,
		arg.PaymentFrequency,
		arg.Description,
		arg.AutoRenewal,
		arg.ImportBatchID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getPolicyIDByPolicyNumber = `
SELECT id FROM policies WHERE policy_number = $1 AND deleted_at IS NULL
`

func (q *Queries) GetPolicyIDByPolicyNumber(ctx context.Context, policyNumber string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getPolicyIDByPolicyNumber, policyNumber).Scan(&id)
	return id, err
}
