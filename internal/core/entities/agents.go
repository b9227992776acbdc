package entities

import (
	"context"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// Agents is the agent entity. Agents reference nothing and are imported first.
func Agents() core.EntityDefinition {
	return core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "agents",
			Label:      "Agents",
			Table:      "agents",
			NaturalKey: "agent_id",
			Order:      orderAgents,
		},
		Fields: []core.FieldSpec{
			{Name: "agent_id", Type: core.FieldText, Required: true},
			{Name: "employee_id", Type: core.FieldText},
			{Name: "license_number", Type: core.FieldText},
			{Name: "first_name", Type: core.FieldText, Required: true},
			{Name: "last_name", Type: core.FieldText, Required: true},
			{Name: "full_name", Type: core.FieldText},
			{Name: "email", Type: core.FieldEmail, Required: true},
			{Name: "phone", Type: core.FieldText},
			{Name: "hire_date", Type: core.FieldDate, DefaultNow: true},
			{Name: "department", Type: core.FieldText},
			{Name: "position", Type: core.FieldText},
			{Name: "status", Type: core.FieldEnum, EnumValues: []string{"active", "inactive", "terminated"}, Default: "active", Normalizer: NormalizeToken},
			{Name: "agent_type", Type: core.FieldEnum, EnumValues: []string{"employee", "broker", "independent"}, Default: "employee", Normalizer: NormalizeToken},
			{Name: "commission_rate", Type: core.FieldNumeric, Default: "0", NonNegative: true},
			{Name: "territory", Type: core.FieldText},
			{Name: "specialization", Type: core.FieldText},
			{Name: "license_state", Type: core.FieldText, Normalizer: NormalizeUsState},
			{Name: "license_expiry", Type: core.FieldDate},
			notesField,
		},
		Build: func(rec core.Record, _ core.ResolvedRefs, batchID pgtype.UUID) (any, error) {
			return db.InsertAgentParams{
				AgentID:        rec.Text("agent_id"),
				EmployeeID:     rec.PgText("employee_id"),
				LicenseNumber:  rec.PgText("license_number"),
				FirstName:      rec.Text("first_name"),
				LastName:       rec.Text("last_name"),
				FullName:       fullName(rec),
				Email:          rec.Text("email"),
				Phone:          rec.PgText("phone"),
				HireDate:       rec.PgDate("hire_date"),
				Department:     rec.PgText("department"),
				Position:       rec.PgText("position"),
				Status:         rec.Text("status"),
				AgentType:      rec.Text("agent_type"),
				CommissionRate: rec.PgNumeric("commission_rate"),
				Territory:      rec.PgText("territory"),
				Specialization: rec.PgText("specialization"),
				LicenseState:   rec.PgText("license_state"),
				LicenseExpiry:  rec.PgDate("license_expiry"),
				Notes:          rec.PgText("notes"),
				ImportBatchID:  batchID,
			}, nil
		},
		Insert: func(ctx context.Context, dbtx core.DBTX, params any) (int64, error) {
			return db.New(dbtx).InsertAgent(ctx, params.(db.InsertAgentParams))
		},
		Lookup: func(ctx context.Context, dbtx core.DBTX, key string) (int64, error) {
			return db.New(dbtx).GetAgentIDByAgentID(ctx, key)
		},
	}
}
