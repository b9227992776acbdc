package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAgent = `
INSERT INTO agents (
    agent_id, employee_id, license_number, first_name, last_name, full_name, email, phone,
    hire_date, department, position, status, agent_type, commission_rate,
    territory, specialization, license_state, license_expiry, notes, import_batch_id
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8,
    $9, $10, $11, $12, $13, $14,
    $15, $16, $17, $18, $19, $20
)
RETURNING id
`

type InsertAgentParams struct {
	AgentID        string
	EmployeeID     pgtype.Text
	LicenseNumber  pgtype.Text
	FirstName      string
	LastName       string
	FullName       string
	Email          string
	Phone          pgtype.Text
	HireDate       pgtype.Date
	Department     pgtype.Text
	Position       pgtype.Text
	Status         string
	AgentType      string
	CommissionRate pgtype.Numeric
	Territory      pgtype.Text
	Specialization pgtype.Text
	LicenseState   pgtype.Text
	LicenseExpiry  pgtype.Date
	Notes          pgtype.Text
	ImportBatchID  pgtype.UUID
}

func (q *Queries) InsertAgent(ctx context.Context, arg InsertAgentParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertAgent,
		arg.AgentID,
		arg.EmployeeID,
		arg.LicenseNumber,
		arg.FirstName,
		arg.LastName,
		arg.FullName,
		arg.Email,
		arg.Phone,
		arg.HireDate,
		arg.Department,
		arg.Position,
		arg.Status,
		arg.AgentType,
		arg.CommissionRate,
		arg.Territory,
		arg.Specialization,
		arg.LicenseState,
		arg.LicenseExpiry,
		arg.Notes,
		arg.ImportBatchID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getAgentIDByAgentID = `
SELECT id FROM agents WHERE agent_id = $1 AND deleted_at IS NULL
`

func (q *Queries) GetAgentIDByAgentID(ctx context.Context, agentID string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getAgentIDByAgentID, agentID).Scan(&id)
	return id, err
}
