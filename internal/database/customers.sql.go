package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertCustomer = `
INSERT INTO customers (
    customer_id, customer_number, first_name, last_name, full_name, date_of_birth, gender,
    email, phone, address_line1, address_line2, city, state, postal_code, country,
    status, customer_type, primary_agent_id, agent_ref, registration_date,
    preferred_contact_method, credit_score, marketing_consent, is_vip, notes, import_batch_id
) VALUES (
    $1, $2, $3, $4, $5, $6, $7,
    $8, $9, $10, $11, $12, $13, $14, $15,
    $16, $17, $18, $19, $20,
    $21, $22, $23, $24, $25, $26
)
RETURNING id
`

type InsertCustomerParams struct {
	CustomerID             string
	CustomerNumber         pgtype.Text
	FirstName              string
	LastName               string
	FullName               string
	DateOfBirth            pgtype.Date
	Gender                 pgtype.Text
	Email                  string
	Phone                  pgtype.Text
	AddressLine1           pgtype.Text
	AddressLine2           pgtype.Text
	City                   pgtype.Text
	State                  pgtype.Text
	PostalCode             pgtype.Text
	Country                pgtype.Text
	Status                 string
	CustomerType           string
	PrimaryAgentID         pgtype.Text
	AgentRef               pgtype.Int8
	RegistrationDate       pgtype.Date
	PreferredContactMethod string
	CreditScore            pgtype.Int8
	MarketingConsent       bool
	IsVip                  bool
	Notes                  pgtype.Text
	ImportBatchID          pgtype.UUID
}

func (q *Queries) InsertCustomer(ctx context.Context, arg InsertCustomerParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertCustomer,
		arg.CustomerID,
		arg.CustomerNumber,
		arg.FirstName,
		arg.LastName,
		arg.FullName,
		arg.DateOfBirth,
		arg.Gender,
		arg.Email,
		arg.Phone,
		arg.AddressLine1,
		arg.AddressLine2,
		arg.City,
		arg.State,
		arg.PostalCode,
		arg.Country,
		arg.Status,
		arg.CustomerType,
		arg.PrimaryAgentID,
		arg.AgentRef,
		arg.RegistrationDate,
		arg.PreferredContactMethod,
		arg.CreditScore,
		arg.MarketingConsent,
		arg.IsVip,
		arg.Notes,
		arg.ImportBatchID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getCustomerIDByCustomerID = `
SELECT id FROM customers WHERE customer_id = $1 AND deleted_at IS NULL
`

func (q *Queries) GetCustomerIDByCustomerID(ctx context.Context, customerID string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, getCustomerIDByCustomerID, customerID).Scan(&id)
	return id, err
}
