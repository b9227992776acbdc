package core

import (
	"context"
	"math"
	"time"
)

// RecentWindow is the look-back period for "recent activity" figures.
const RecentWindow = 30 * 24 * time.Hour

// Overview is the dashboard summary across all entities.
type Overview struct {
	Totals struct {
		Customers int64 `json:"customers"`
		Agents    int64 `json:"agents"`
		Policies  int64 `json:"policies"`
		Payments  int64 `json:"payments"`
		Receipts  int64 `json:"receipts"`
		Claims    int64 `json:"claims"`
	} `json:"totals"`

	Active struct {
		Policies  int64 `json:"policies"`
		Customers int64 `json:"customers"`
		Agents    int64 `json:"agents"`
	} `json:"active"`

	Financial struct {
		TotalPremium  float64 `json:"total_premium"`
		TotalCoverage float64 `json:"total_coverage"`
		TotalPayments float64 `json:"total_payments"`
		TotalClaims   float64 `json:"total_claims"`
	} `json:"financial"`

	RecentActivity struct {
		Payments30d int64 `json:"payments_30d"`
		Claims30d   int64 `json:"claims_30d"`
	} `json:"recent_activity"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Overview returns the dashboard summary. Soft-deleted rows are excluded.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	now := s.now().UTC()
	o, err := s.store.Overview(ctx, now.Add(-RecentWindow))
	if err != nil {
		return Overview{}, err
	}
	o.Financial.TotalPremium = round2(o.Financial.TotalPremium)
	o.Financial.TotalCoverage = round2(o.Financial.TotalCoverage)
	o.Financial.TotalPayments = round2(o.Financial.TotalPayments)
	o.Financial.TotalClaims = round2(o.Financial.TotalClaims)
	o.GeneratedAt = now
	return o, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
