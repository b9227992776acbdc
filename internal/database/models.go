package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type ImportBatch struct {
	ID          pgtype.UUID
	EntityType  string
	FileName    string
	StoredPath  string
	FileSize    int64
	Checksum    string
	Actor       pgtype.Text
	State       string
	Outcome     pgtype.Text
	Inserted    int32
	Rejected    int32
	Error       pgtype.Text
	SubmittedAt pgtype.Timestamptz
	StartedAt   pgtype.Timestamptz
	FinishedAt  pgtype.Timestamptz
}

type ImportRowError struct {
	BatchID  pgtype.UUID
	RowIndex int32
	Kind     string
	Reason   string
}

type AuditLog struct {
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

type Overview struct {
	Customers       int64
	Agents          int64
	Policies        int64
	Payments        int64
	Receipts        int64
	Claims          int64
	ActivePolicies  int64
	ActiveCustomers int64
	ActiveAgents    int64
	TotalPremium    pgtype.Numeric
	TotalCoverage   pgtype.Numeric
	TotalPayments   pgtype.Numeric
	TotalClaims     pgtype.Numeric
	RecentPayments  int64
	RecentClaims    int64
}
