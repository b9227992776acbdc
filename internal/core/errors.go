package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinels for the import error taxonomy. Every typed error below matches
// its sentinel with errors.Is.
var (
	ErrParse             = errors.New("parse error")
	ErrValidation        = errors.New("validation error")
	ErrReferenceNotFound = errors.New("reference not found")
	ErrPersistence       = errors.New("persistence error")
)

// Submission and lookup errors.
var (
	ErrUnknownEntity   = errors.New("unknown entity type")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("empty file")
	ErrBatchNotFound   = errors.New("batch not found")
	ErrBatchFinished   = errors.New("batch already finished")
	ErrBatchActive     = errors.New("batch still importing")
	ErrUploadNotFound  = errors.New("upload file not found")
	ErrAuditNotFound   = errors.New("audit entry not found")
	ErrServiceClosed   = errors.New("import service is shutting down")
)

// ParseError is a file-level failure: the file cannot be read as a table of
// rows for the target entity. It aborts the whole batch.
type ParseError struct {
	Row int    // 1-based data row, 0 when not row specific
	Msg string // What was wrong
	Err error  // Underlying cause, may be nil
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error")
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ValidationKind says which rule a field violated.
type ValidationKind int

const (
	MissingField ValidationKind = iota
	TypeMismatch
	EnumViolation
	RangeViolation
)

// ValidationError is a field-level rejection produced by the row validator.
type ValidationError struct {
	Field   string
	Value   string
	Kind    ValidationKind
	Type    FieldType
	Allowed []string
	Rule    string // Range rule text, e.g. "must be greater than zero"
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingField:
		return "missing field: " + e.Field
	case TypeMismatch:
		return fmt.Sprintf("invalid %s for field %s: %q", e.Type, e.Field, e.Value)
	case EnumViolation:
		return fmt.Sprintf("invalid value for field %s: %q (allowed: %s)", e.Field, e.Value, strings.Join(e.Allowed, ", "))
	case RangeViolation:
		return fmt.Sprintf("field %s %s", e.Field, e.Rule)
	default:
		return "invalid field " + e.Field
	}
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ValidationErrors collects every field failure of one row.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (es ValidationErrors) Is(target error) bool { return target == ErrValidation && len(es) > 0 }

// ReferenceNotFound means a row names a related entity that does not exist.
type ReferenceNotFound struct {
	Field  string // Column carrying the key
	Entity string // Referenced entity key
	Key    string // Natural key value from the row
}

func (e *ReferenceNotFound) Error() string {
	return fmt.Sprintf("reference not found: %s %q does not exist in %s", e.Field, e.Key, e.Entity)
}

func (e *ReferenceNotFound) Is(target error) bool { return target == ErrReferenceNotFound }

// PersistenceError wraps a database failure for a single row or batch operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Sprintf("persistence error: duplicate value violates %s", constraintOrTable(pgErr))
		case "23503":
			return fmt.Sprintf("persistence error: foreign key violation on %s", constraintOrTable(pgErr))
		case "23514":
			return fmt.Sprintf("persistence error: check constraint %s failed", constraintOrTable(pgErr))
		case "23502":
			return fmt.Sprintf("persistence error: column %s cannot be null", pgErr.ColumnName)
		}
	}
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func constraintOrTable(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return pgErr.TableName
}

// rowErrorKind maps a rejection to its RowErrorKind.
func rowErrorKind(err error) RowErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return RowErrorValidation
	case errors.Is(err, ErrReferenceNotFound):
		return RowErrorReference
	default:
		return RowErrorPersistence
	}
}

// IsTransient reports whether err is worth retrying: connection loss,
// serialization failures and deadlocks.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57P03", "53300":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
