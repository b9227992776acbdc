package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readAll(t *testing.T, src RowSource) []RawRow {
	t.Helper()
	var rows []RawRow
	for {
		r, err := src.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, r)
	}
}

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestCSVSource(t *testing.T) {
	data := "\ufeffCustomer ID,First Name,Email\nC-1,Ann,ann@example.com\nC-2,Bob,bob@example.com\n"

	src, err := NewCSVSource(strings.NewReader(data))
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, []string{"customer_id", "first_name", "email"}, src.Header())

	rows := readAll(t, src)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, []string{"C-1", "Ann", "ann@example.com"}, rows[0].Cells)
	assert.Equal(t, 2, rows[1].Index)
}

func TestCSVSource_BlankRowsKeepIndex(t *testing.T) {
	data := "id,name\n1,a\n,\n3,c\n"

	src, err := NewCSVSource(strings.NewReader(data))
	require.NoError(t, err)

	rows := readAll(t, src)
	require.Len(t, rows, 3)
	assert.True(t, isBlank(rows[1].Cells))
	assert.Equal(t, 3, rows[2].Index)
}

func TestCSVSource_LeadingBlankLinesBeforeHeader(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader(",,\nid,name\n1,a\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, src.Header())

	rows := readAll(t, src)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Index)
}

func TestCSVSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{name: "empty", data: "", wantMsg: "file is empty"},
		{name: "only blank lines", data: "\n\n", wantMsg: "file is empty"},
		{name: "duplicate header", data: "Email,email\n", wantMsg: `duplicate column "email" in header`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVSource(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestXLSXSource(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Policy Number", "Amount", "Payment ID"},
		{"POL-1", 120.5, "PAY-1"},
		{"POL-2", 99, "PAY-2"},
	})

	src, err := NewXLSXSource(bytes.NewReader(data))
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, []string{"policy_number", "amount", "payment_id"}, src.Header())

	rows := readAll(t, src)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, "POL-1", rows[0].Cells[0])
	assert.Equal(t, "PAY-2", rows[1].Cells[2])
}

func TestXLSXSource_LegacyWorkbook(t *testing.T) {
	data := append(append([]byte{}, oleSignature...), make([]byte, 512)...)

	_, err := NewXLSXSource(bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.Contains(t, err.Error(), "legacy .xls")
}

func TestXLSXSource_NotAWorkbook(t *testing.T) {
	_, err := NewXLSXSource(strings.NewReader("id,name\n1,a\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestXLSXSource_EmptySheet(t *testing.T) {
	data := buildWorkbook(t, nil)

	_, err := NewXLSXSource(bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worksheet is empty")
}

func TestNewSource(t *testing.T) {
	_, err := NewSource(".xls", strings.NewReader("x"))
	assert.True(t, errors.Is(err, ErrParse))

	_, err = NewSource(".txt", strings.NewReader("x"))
	assert.True(t, errors.Is(err, ErrParse))

	src, err := NewSource(".CSV", strings.NewReader("id\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, src.Header())
}

func TestRowFromCells(t *testing.T) {
	header := []string{"id", "", "name"}

	row := rowFromCells(header, []string{"1", "ignored", "Ann", "extra"})
	assert.Equal(t, Row{"id": "1", "name": "Ann"}, row)

	short := rowFromCells(header, []string{"2"})
	assert.Equal(t, Row{"id": "2"}, short)
}
