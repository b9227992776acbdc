package core

// validation.go checks parsed rows against an entity's field specs.
//
// Validation happens at two levels:
//  1. Header validation: every required column is present (a ParseError otherwise)
//  2. Row validation: each cell against its FieldSpec, producing a typed Record
//
// Row validation is pure: the same row and specs always give the same result.

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Record is a validated row. Values are typed by FieldType:
// text/email/enum string, date time.Time, numeric pgtype.Numeric,
// integer int64, bool bool. Empty optional cells are absent.
type Record map[string]any

// Text returns a string field, "" when absent.
func (r Record) Text(name string) string {
	s, _ := r[name].(string)
	return s
}

// PgText returns a string field as pgtype.Text.
func (r Record) PgText(name string) pgtype.Text {
	return ToPgText(r.Text(name))
}

// Time returns a date field.
func (r Record) Time(name string) (time.Time, bool) {
	t, ok := r[name].(time.Time)
	return t, ok
}

// PgDate returns a date field as pgtype.Date.
func (r Record) PgDate(name string) pgtype.Date {
	t, _ := r.Time(name)
	return ToPgDate(t)
}

// PgNumeric returns a numeric field, NULL when absent.
func (r Record) PgNumeric(name string) pgtype.Numeric {
	n, _ := r[name].(pgtype.Numeric)
	return n
}

// PgInt8 returns an integer field as pgtype.Int8.
func (r Record) PgInt8(name string) pgtype.Int8 {
	i, ok := r[name].(int64)
	if !ok {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: i, Valid: true}
}

// PgBool returns a boolean field as pgtype.Bool.
func (r Record) PgBool(name string) pgtype.Bool {
	b, ok := r[name].(bool)
	if !ok {
		return pgtype.Bool{}
	}
	return pgtype.Bool{Bool: b, Valid: true}
}

// RowValidator validates rows against one entity's field specs.
type RowValidator struct {
	specs []FieldSpec
	now   func() time.Time
}

// NewRowValidator creates a validator. now supplies the value for
// DefaultNow fields; nil means time.Now.
func NewRowValidator(specs []FieldSpec, now func() time.Time) *RowValidator {
	if now == nil {
		now = time.Now
	}
	return &RowValidator{specs: specs, now: now}
}

// Validate checks a row and stops at the first failing field.
// Returns a *ValidationError on failure.
func (v *RowValidator) Validate(row Row) (Record, error) {
	rec := make(Record, len(v.specs))
	for _, spec := range v.specs {
		if verr := v.validateField(rec, row, spec); verr != nil {
			return nil, verr
		}
	}
	return rec, nil
}

// ValidateAll checks every field and returns all failures at once.
func (v *RowValidator) ValidateAll(row Row) (Record, ValidationErrors) {
	rec := make(Record, len(v.specs))
	var errs ValidationErrors
	for _, spec := range v.specs {
		if verr := v.validateField(rec, row, spec); verr != nil {
			errs = append(errs, verr)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return rec, nil
}

func (v *RowValidator) validateField(rec Record, row Row, spec FieldSpec) *ValidationError {
	raw := CleanCell(row[spec.Name])

	if raw == "" {
		switch {
		case spec.Default != "":
			raw = spec.Default
		case spec.DefaultNow && spec.Type == FieldDate:
			rec[spec.Name] = v.now().UTC().Truncate(24 * time.Hour)
			return nil
		case spec.Required:
			return &ValidationError{Field: spec.Name, Kind: MissingField}
		default:
			return nil
		}
	}

	if spec.Normalizer != nil {
		raw = spec.Normalizer(raw)
	}

	value, verr := convertField(raw, spec)
	if verr != nil {
		return verr
	}
	rec[spec.Name] = value
	return nil
}

// convertField parses raw into the Go type for spec and applies range rules.
func convertField(raw string, spec FieldSpec) (any, *ValidationError) {
	mismatch := func() *ValidationError {
		return &ValidationError{Field: spec.Name, Value: raw, Kind: TypeMismatch, Type: spec.Type}
	}

	switch spec.Type {
	case FieldEmail:
		if !ValidEmail(raw) {
			return nil, mismatch()
		}
		return strings.ToLower(raw), nil

	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, raw) {
				return ev, nil
			}
		}
		return nil, &ValidationError{Field: spec.Name, Value: raw, Kind: EnumViolation, Allowed: spec.EnumValues}

	case FieldDate:
		t, ok := ParseDate(raw)
		if !ok {
			return nil, mismatch()
		}
		return t, nil

	case FieldNumeric:
		n, ok := ParseNumeric(raw)
		if !ok {
			return nil, mismatch()
		}
		if verr := checkRange(spec, raw, NumericFloat(n)); verr != nil {
			return nil, verr
		}
		return n, nil

	case FieldInteger:
		i, ok := ParseInteger(raw)
		if !ok {
			return nil, mismatch()
		}
		if verr := checkRange(spec, raw, float64(i)); verr != nil {
			return nil, verr
		}
		return i, nil

	case FieldBool:
		b, ok := ParseBool(raw)
		if !ok {
			return nil, mismatch()
		}
		return b, nil

	default:
		return raw, nil
	}
}

func checkRange(spec FieldSpec, raw string, f float64) *ValidationError {
	switch {
	case spec.Positive && f <= 0:
		return &ValidationError{Field: spec.Name, Value: raw, Kind: RangeViolation, Rule: "must be greater than zero"}
	case spec.NonNegative && f < 0:
		return &ValidationError{Field: spec.Name, Value: raw, Kind: RangeViolation, Rule: "must not be negative"}
	}
	return nil
}

// ValidateHeader checks that a normalized header contains every required column.
// Returns a ParseError listing the missing ones.
func ValidateHeader(header []string, def EntityDefinition) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, col := range def.Info.Required {
		if !present[col] {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return &ParseError{Msg: "missing required columns: " + strings.Join(missing, ", ")}
	}
	return nil
}
