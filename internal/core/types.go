package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// FieldType is the expected data type of a spreadsheet column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEmail
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInteger
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldEmail:
		return "email"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "number"
	case FieldInteger:
		return "integer"
	case FieldBool:
		return "boolean"
	default:
		return "value"
	}
}

// FieldSpec describes one column of an entity's import schema.
type FieldSpec struct {
	Name        string              // Normalized column header (lower_snake_case)
	Type        FieldType           // Expected data type
	Required    bool                // Column must be present and non-empty
	EnumValues  []string            // Allowed values for FieldEnum
	Default     string              // Raw value used when the cell is empty
	DefaultNow  bool                // Empty date cells take the import time
	Positive    bool                // Numeric value must be > 0
	NonNegative bool                // Numeric value must be >= 0
	Normalizer  func(string) string // Optional transformation applied before type checks
}

// ReferenceSpec declares a foreign key carried by natural key in a row.
type ReferenceSpec struct {
	Field    string // Column holding the referenced natural key
	Entity   string // Registry key of the referenced entity
	Optional bool   // Missing targets resolve to NULL unless strict references are on
}

// EntityInfo describes an importable entity.
type EntityInfo struct {
	Key        string   `json:"key"`        // Path value: "customers"
	Label      string   `json:"label"`      // Display name: "Customers"
	Table      string   `json:"table"`      // Database table
	NaturalKey string   `json:"naturalKey"` // Column that identifies a row in files
	Order      int      `json:"order"`      // Dependency order for imports
	Columns    []string `json:"columns"`    // Accepted column names
	Required   []string `json:"required"`   // Columns a header must contain
}

// BuildFunc turns a validated record and its resolved references into insert params.
type BuildFunc func(rec Record, refs ResolvedRefs, batchID pgtype.UUID) (any, error)

// InsertFunc inserts params built by BuildFunc and returns the new row id.
type InsertFunc func(ctx context.Context, db DBTX, params any) (int64, error)

// LookupFunc resolves a natural key to a row id.
// Returns pgx.ErrNoRows when no live row has that key.
type LookupFunc func(ctx context.Context, db DBTX, key string) (int64, error)

// EntityDefinition contains everything needed to import one entity type.
type EntityDefinition struct {
	Info       EntityInfo
	Fields     []FieldSpec
	References []ReferenceSpec
	Build      BuildFunc
	Insert     InsertFunc
	Lookup     LookupFunc
}

// Field returns the FieldSpec for a column name.
func (d EntityDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Row is one parsed data row keyed by normalized column name.
type Row map[string]string

// Entity is a validated row ready for persistence.
type Entity struct {
	Type   string // Registry key
	Key    string // Natural key value
	Params any    // Insert params from the definition's BuildFunc
}

// BatchState is the lifecycle state of an import batch.
type BatchState string

const (
	StatePending BatchState = "pending"
	StateRunning BatchState = "running"
	StateDone    BatchState = "done"
)

// Outcome is the final result classification of a finished batch.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// RowErrorKind classifies a rejected row.
type RowErrorKind string

const (
	RowErrorValidation  RowErrorKind = "validation"
	RowErrorReference   RowErrorKind = "reference"
	RowErrorPersistence RowErrorKind = "persistence"
)

// RowError records why a single data row was rejected.
type RowError struct {
	RowIndex int          `json:"row_index"`
	Reason   string       `json:"reason"`
	Kind     RowErrorKind `json:"kind"`
	Err      error        `json:"-"`
}

// ImportResult aggregates the outcome of processing one file.
type ImportResult struct {
	Inserted int        `json:"inserted"`
	Rejected int        `json:"rejected"`
	Errors   []RowError `json:"errors"`
}

// BatchStatus is the externally visible state of an import batch.
type BatchStatus struct {
	BatchID     string     `json:"batch_id"`
	EntityType  string     `json:"entity_type"`
	FileName    string     `json:"filename"`
	StoredPath  string     `json:"-"`
	FileSize    int64      `json:"size"`
	Checksum    string     `json:"sha256,omitempty"`
	Actor       string     `json:"actor,omitempty"`
	State       BatchState `json:"status"`
	Outcome     Outcome    `json:"outcome,omitempty"`
	Inserted    int        `json:"inserted"`
	Rejected    int        `json:"rejected"`
	Errors      []RowError `json:"errors"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Done reports whether the batch reached a terminal state.
func (b BatchStatus) Done() bool {
	return b.State == StateDone
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	EntityType string
	State      BatchState
	Limit      int
	Offset     int
}
