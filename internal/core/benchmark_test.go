package core

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkParseNumeric covers the formats seen in premium and amount columns.
func BenchmarkParseNumeric(b *testing.B) {
	inputs := []string{"123", "-456.78", "$1,234.56", "(123.45)", "  999.99  ", "€1234.56"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, in := range inputs {
			ParseNumeric(in)
		}
	}
}

// BenchmarkParseDate covers ISO, US, text and serial dates. The serial is
// the slowest path since every layout is tried first.
func BenchmarkParseDate(b *testing.B) {
	inputs := []string{"2024-01-15", "01/15/2024", "Jan 15, 2024", "20240115", "1/5/24", "45306"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, in := range inputs {
			ParseDate(in)
		}
	}
}

// ============================================================================
// Pipeline Benchmarks
// ============================================================================

type nopWriter struct{ next int64 }

func (w *nopWriter) Lookup(context.Context, string, string) (int64, bool, error) { return 1, true, nil }

func (w *nopWriter) Insert(context.Context, Entity) (int64, error) {
	w.next++
	return w.next, nil
}

func benchDefinition() EntityDefinition {
	return EntityDefinition{
		Info: EntityInfo{Key: "payments", NaturalKey: "payment_id", Required: []string{"payment_id", "policy_number", "amount"}},
		Fields: []FieldSpec{
			{Name: "payment_id", Type: FieldText, Required: true},
			{Name: "policy_number", Type: FieldText, Required: true},
			{Name: "amount", Type: FieldNumeric, Required: true, Positive: true},
			{Name: "payment_status", Type: FieldEnum, EnumValues: []string{"pending", "completed"}, Default: "pending"},
			{Name: "payment_date", Type: FieldDate, DefaultNow: true},
		},
		References: []ReferenceSpec{{Field: "policy_number", Entity: "policies"}},
		Build: func(rec Record, refs ResolvedRefs, _ pgtype.UUID) (any, error) {
			return rec, nil
		},
		Insert: func(context.Context, DBTX, any) (int64, error) { return 0, nil },
		Lookup: func(context.Context, DBTX, string) (int64, error) { return 0, nil },
	}
}

func buildPaymentsCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("Payment ID,Policy Number,Amount,Payment Status,Payment Date\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "PAY-%d,POL-%d,$%d.50,completed,2024-01-15\n", i, i%100, i+1)
	}
	return sb.String()
}

// BenchmarkImportRows measures validate+map+insert per row without a database.
func BenchmarkImportRows(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		data := buildPaymentsCSV(size)
		def := benchDefinition()

		b.Run(fmt.Sprintf("rows_%d", size), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				src, err := NewCSVSource(strings.NewReader(data))
				if err != nil {
					b.Fatal(err)
				}
				res, err := ImportRows(context.Background(), src, def, &nopWriter{}, ImportOptions{})
				if err != nil {
					b.Fatal(err)
				}
				if res.Inserted != size {
					b.Fatalf("inserted %d, want %d", res.Inserted, size)
				}
			}
		})
	}
}

// BenchmarkValidate measures a single row validation.
func BenchmarkValidate(b *testing.B) {
	v := NewRowValidator(benchDefinition().Fields, nil)
	row := Row{"payment_id": "PAY-1", "policy_number": "POL-1", "amount": "$1,200.00", "payment_status": "Completed"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Validate(row); err != nil {
			b.Fatal(err)
		}
	}
}
