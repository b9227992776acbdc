package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertClaim = `
INSERT INTO claims (
    claim_number, policy_number, policy_ref, claim_type, claim_amount, approved_amount,
    currency, incident_date, claim_date, status, priority, description,
    incident_location, adjuster_id, is_fraudulent, import_batch_id
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9, $10, $11, $12,
    $13, $14, $15, $16
)
RETURNING id
`

type InsertClaimParams struct {
	ClaimNumber      string
	PolicyNumber     string
	PolicyRef        pgtype.Int8
	ClaimType        string
	ClaimAmount      pgtype.Numeric
	ApprovedAmount   pgtype.Numeric
	Currency         string
	IncidentDate     pgtype.Date
	ClaimDate        pgtype.Date
	Status           string
	Priority         string
	Description      string
	IncidentLocation pgtype.Text
	AdjusterID       pgtype.Text
	IsFraudulent     bool
	ImportBatchID    pgtype.UUID
}

func (q *Queries) InsertClaim(ctx context.Context, arg InsertClaimParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertClaim,
		arg.ClaimNumber,
		arg.PolicyNumber,
		arg.PolicyRef,
		arg.ClaimType,
		arg.ClaimAmount,
		arg.ApprovedAmount,
		arg.Currency,
		arg.IncidentDate,
		arg.ClaimDate,
		arg.Status,
		arg.Priority,
		arg.Description,
		arg.IncidentLocation,
		arg.AdjusterID,
		arg.IsFraudulent,
		arg.ImportBatchID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getClaimIDByClaimNumber = `
SELECT id FROM claims WHERE claim_number = $1 AND deleted_at IS NULL
`

func (q *Queries) GetClaimIDByClaimNumber(ctx context.Context, claimNumber string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getClaimIDByClaimNumber, claimNumber).Scan(&id)
	return id, err
}
