package core

// convert.go turns spreadsheet cell text into typed values.
//
// Cells arrive as whatever the sheet's number format rendered, so one column
// can mix ISO dates, US dates and raw Excel serial numbers, or "$1,200.00"
// next to "(35.10)". Parsers here accept all of those and report failure
// with ok=false instead of guessing.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/xuri/excelize/v2"
)

var (
	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	emailRegex   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	serialRegex  = regexp.MustCompile(`^\d{1,7}(\.\d+)?$`)
)

// TwoDigitYearPivot: two-digit years landing more than this many years in
// the future are moved back a century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"1/2/2006 15:04", "1/2/2006 15:04:05",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "02-Jan-2006", "2-Jan-06",
		"20060102",
	}
)

// Excel serial dates outside this window are treated as plain numbers.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465 // 9999-12-31
)

// ParseDate parses a date cell. Accepts the layouts above and Excel serial numbers.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	// 8 digit strings were tried as yyyymmdd above; only shorter serials remain.
	if serialRegex.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f >= minExcelSerial && f <= maxExcelSerial {
			if t, err := excelize.ExcelDateToTime(f, false); err == nil {
				return t.UTC(), true
			}
		}
	}

	return time.Time{}, false
}

// CleanNumber strips currency symbols, thousands separators and accounting
// parentheses. Returns ok=false when the remainder is not a number.
func CleanNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// ParseNumeric parses a numeric cell into an exact decimal.
func ParseNumeric(s string) (pgtype.Numeric, bool) {
	clean, ok := CleanNumber(s)
	if !ok {
		return pgtype.Numeric{}, false
	}
	var n pgtype.Numeric
	if err := n.Scan(clean); err != nil || !n.Valid {
		return pgtype.Numeric{}, false
	}
	return n, true
}

// ParseInteger parses a whole-number cell. "12.0" (how sheets render
// integers in general-format cells) is accepted.
func ParseInteger(s string) (int64, bool) {
	clean, ok := CleanNumber(s)
	if !ok {
		return 0, false
	}
	if i, err := strconv.ParseInt(clean, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ValidEmail does a structural check of an address.
func ValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// ToPgText converts a string to pgtype.Text; blank strings become NULL.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a time to pgtype.Date; the zero time becomes NULL.
func ToPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// ToPgTimestamptz converts a time to pgtype.Timestamptz; the zero time becomes NULL.
func ToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// ToPgInt8 wraps an id; zero becomes NULL.
func ToPgInt8(i int64) pgtype.Int8 {
	if i == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: i, Valid: true}
}

// ToPgUUID converts a string to pgtype.UUID. Invalid input becomes NULL.
func ToPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// PgUUIDToString converts a pgtype.UUID to its string form, "" when NULL.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// NumericFloat returns the float value of n, 0 when NULL.
func NumericFloat(n pgtype.Numeric) float64 {
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return 0
	}
	return f.Float64
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="...") and wrapping quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// NormalizeHeader maps a header cell to its column key:
// "Policy Number" and "policy-number" both become "policy_number".
func NormalizeHeader(s string) string {
	s = strings.ToLower(CleanCell(s))
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t'
	}), "_")
	return s
}
