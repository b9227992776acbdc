package entities

import (
	"context"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	db "github.com/JonMunkholm/InsuranceDashboard/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// Customers is the customer entity. primary_agent_id is an optional
// reference: an unknown agent is stored as NULL unless strict references
// are enabled.
func Customers() core.EntityDefinition {
	return core.EntityDefinition{
		Info: core.EntityInfo{
			Key:        "customers",
			Label:      "Customers",
			Table:      "customers",
			NaturalKey: "customer_id",
			Order:      orderCustomers,
		},
		Fields: []core.FieldSpec{
			{Name: "customer_id", Type: core.FieldText, Required: true},
			{Name: "customer_number", Type: core.FieldText},
			{Name: "first_name", Type: core.FieldText, Required: true},
			{Name: "last_name", Type: core.FieldText, Required: true},
			{Name: "full_name", Type: core.FieldText},
			{Name: "date_of_birth", Type: core.FieldDate},
			{Name: "gender", Type: core.FieldText},
			{Name: "email", Type: core.FieldEmail, Required: true},
			{Name: "phone", Type: core.FieldText},
			{Name: "address_line1", Type: core.FieldText},
			{Name: "address_line2", Type: core.FieldText},
			{Name: "city", Type: core.FieldText},
			{Name: "state", Type: core.FieldText, Normalizer: NormalizeUsState},
			{Name: "postal_code", Type: core.FieldText},
			{Name: "country", Type: core.FieldText},
			{Name: "status", Type: core.FieldEnum, EnumValues: []string{"active", "inactive", "suspended"}, Default: "active", Normalizer: NormalizeToken},
			{Name: "customer_type", Type: core.FieldEnum, EnumValues: []string{"individual", "corporate"}, Default: "individual", Normalizer: NormalizeToken},
			{Name: "primary_agent_id", Type: core.FieldText},
			{Name: "registration_date", Type: core.FieldDate, DefaultNow: true},
			{Name: "preferred_contact_method", Type: core.FieldEnum, EnumValues: []string{"email", "phone", "mail"}, Default: "email", Normalizer: NormalizeToken},
			{Name: "credit_score", Type: core.FieldInteger, NonNegative: true},
			{Name: "marketing_consent", Type: core.FieldBool, Default: "false"},
			{Name: "is_vip", Type: core.FieldBool, Default: "false"},
			notesField,
		},
		References: []core.ReferenceSpec{
			{Field: "primary_agent_id", Entity: "agents", Optional: true},
		},
		Build: func(rec core.Record, refs core.ResolvedRefs, batchID pgtype.UUID) (any, error) {
			return db.InsertCustomerParams{
				CustomerID:             rec.Text("customer_id"),
				CustomerNumber:         rec.PgText("customer_number"),
				FirstName:              rec.Text("first_name"),
				LastName:               rec.Text("last_name"),
				FullName:               fullName(rec),
				DateOfBirth:            rec.PgDate("date_of_birth"),
				Gender:                 rec.PgText("gender"),
				Email:                  rec.Text("email"),
				Phone:                  rec.PgText("phone"),
				AddressLine1:           rec.PgText("address_line1"),
				AddressLine2:           rec.PgText("address_line2"),
				City:                   rec.PgText("city"),
				State:                  rec.PgText("state"),
				PostalCode:             rec.PgText("postal_code"),
				Country:                rec.PgText("country"),
				Status:                 rec.Text("status"),
				CustomerType:           rec.Text("customer_type"),
				PrimaryAgentID:         rec.PgText("primary_agent_id"),
				AgentRef:               refs.ID("primary_agent_id"),
				RegistrationDate:       rec.PgDate("registration_date"),
				PreferredContactMethod: rec.Text("preferred_contact_method"),
				CreditScore:            rec.PgInt8("credit_score"),
				MarketingConsent:       flag(rec, "marketing_consent"),
				IsVip:                  flag(rec, "is_vip"),
				Notes:                  rec.PgText("notes"),
				ImportBatchID:          batchID,
			}, nil
		},
		Insert: func(ctx context.Context, dbtx core.DBTX, params any) (int64, error) {
			return db.New(dbtx).InsertCustomer(ctx, params.(db.InsertCustomerParams))
		},
		Lookup: func(ctx context.Context, dbtx core.DBTX, key string) (int64, error) {
			return db.New(dbtx).GetCustomerIDByCustomerID(ctx, key)
		},
	}
}
