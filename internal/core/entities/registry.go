// Package entities defines the importable insurance entities: their
// columns, references and persistence functions.
package entities

import (
	"strings"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
)

// Import order: parents before the rows that reference them.
const (
	orderAgents = iota + 1
	orderCustomers
	orderPolicies
	orderPayments
	orderReceipts
	orderClaims
)

// NewRegistry returns a registry holding every insurance entity.
func NewRegistry() *core.Registry {
	reg := core.NewRegistry()
	reg.Register(Agents())
	reg.Register(Customers())
	reg.Register(Policies())
	reg.Register(Payments())
	reg.Register(Receipts())
	reg.Register(Claims())
	return reg
}

// fullName prefers an explicit full_name column and otherwise joins the
// first and last names.
func fullName(rec core.Record) string {
	if name := rec.Text("full_name"); name != "" {
		return name
	}
	return strings.TrimSpace(rec.Text("first_name") + " " + rec.Text("last_name"))
}

// flag reads a boolean column; absent means false.
func flag(rec core.Record, name string) bool {
	b := rec.PgBool(name)
	return b.Valid && b.Bool
}

var (
	currencyField = core.FieldSpec{Name: "currency", Type: core.FieldText, Default: "USD", Normalizer: NormalizeCurrency}
	notesField    = core.FieldSpec{Name: "notes", Type: core.FieldText}
)
