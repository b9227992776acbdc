package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getOverview = `
SELECT
    (SELECT COUNT(*) FROM customers WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM agents WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM policies WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM payments WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM receipts WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM claims WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM policies WHERE deleted_at IS NULL AND status = 'active'),
    (SELECT COUNT(*) FROM customers WHERE deleted_at IS NULL AND status = 'active'),
    (SELECT COUNT(*) FROM agents WHERE deleted_at IS NULL AND status = 'active'),
    (SELECT COALESCE(SUM(premium_amount), 0) FROM policies WHERE deleted_at IS NULL AND status = 'active'),
    (SELECT COALESCE(SUM(coverage_amount), 0) FROM policies WHERE deleted_at IS NULL AND status = 'active'),
    (SELECT COALESCE(SUM(amount), 0) FROM payments WHERE deleted_at IS NULL AND payment_status = 'completed'),
    (SELECT COALESCE(SUM(claim_amount), 0) FROM claims WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM payments WHERE deleted_at IS NULL AND payment_date >= $1::date),
    (SELECT COUNT(*) FROM claims WHERE deleted_at IS NULL AND claim_date >= $1::date)
`

func (q *Queries) GetOverview(ctx context.Context, since pgtype.Date) (Overview, error) {
	var o Overview
	err := q.db.QueryRow(ctx, getOverview, since).Scan(
		&o.Customers,
		&o.Agents,
		&o.Policies,
		&o.Payments,
		&o.Receipts,
		&o.Claims,
		&o.ActivePolicies,
		&o.ActiveCustomers,
		&o.ActiveAgents,
		&o.TotalPremium,
		&o.TotalCoverage,
		&o.TotalPayments,
		&o.TotalClaims,
		&o.RecentPayments,
		&o.RecentClaims,
	)
	return o, err
}
