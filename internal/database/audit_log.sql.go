package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const auditLogColumns = `id, action, severity, entity_type, batch_id, status, description, details,
    actor, ip_address, user_agent, created_at`

func scanAuditLog(row pgx.Row) (AuditLog, error) {
	var i AuditLog
	err := row.Scan(
		&i.ID,
		&i.Action,
		&i.Severity,
		&i.EntityType,
		&i.BatchID,
		&i.Status,
		&i.Description,
		&i.Details,
		&i.Actor,
		&i.IpAddress,
		&i.UserAgent,
		&i.CreatedAt,
	)
	return i, err
}

const insertAuditLog = `
INSERT INTO audit_log (id, action, severity, entity_type, batch_id, status, description, details,
    actor, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

type InsertAuditLogParams struct {
	ID          pgtype.UUID
	Action      string
	Severity    string
	EntityType  string
	BatchID     pgtype.UUID
	Status      pgtype.Text
	Description string
	Details     []byte
	Actor       pgtype.Text
	IpAddress   pgtype.Text
	UserAgent   pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, insertAuditLog,
		arg.ID,
		arg.Action,
		arg.Severity,
		arg.EntityType,
		arg.BatchID,
		arg.Status,
		arg.Description,
		arg.Details,
		arg.Actor,
		arg.IpAddress,
		arg.UserAgent,
		arg.CreatedAt,
	)
	return err
}

const getAuditLogByID = `SELECT ` + auditLogColumns + ` FROM audit_log WHERE id = $1`

func (q *Queries) GetAuditLogByID(ctx context.Context, id pgtype.UUID) (AuditLog, error) {
	return scanAuditLog(q.db.QueryRow(ctx, getAuditLogByID, id))
}

const listAuditLog = `SELECT ` + auditLogColumns + ` FROM audit_log
WHERE ($1::text = '' OR entity_type = $1)
  AND ($2::text = '' OR action = $2)
  AND ($3::uuid IS NULL OR batch_id = $3)
ORDER BY created_at DESC, id
LIMIT $4 OFFSET $5
`

type ListAuditLogParams struct {
	EntityType string
	Action     string
	BatchID    pgtype.UUID
	Limit      int32
	Offset     int32
}

func (q *Queries) ListAuditLog(ctx context.Context, arg ListAuditLogParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLog, arg.EntityType, arg.Action, arg.BatchID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditLog
	for rows.Next() {
		i, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
