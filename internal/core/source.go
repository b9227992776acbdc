package core

// source.go reads uploaded files as a header plus a stream of data rows.
//
// Rows are never loaded into memory all at once: XLSX sheets are walked with
// excelize's row iterator and CSV through encoding/csv over a decoding reader
// that drops byte order marks and replaces invalid UTF-8.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// RawRow is one data row as read from the file.
// Index is the 1-based position among data rows, header excluded.
type RawRow struct {
	Index int
	Cells []string
}

// RowSource yields the rows of one uploaded file.
type RowSource interface {
	// Header returns the normalized column names.
	Header() []string
	// Next returns the next data row, or io.EOF when the file is exhausted.
	// Any other error is a *ParseError.
	Next() (RawRow, error)
	Close() error
}

// oleSignature starts every legacy BIFF (.xls) workbook.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// OpenSource opens a spooled upload and picks a reader by extension.
func OpenSource(path string) (RowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Msg: "open file", Err: err}
	}

	src, err := NewSource(filepath.Ext(path), f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &fileSource{RowSource: src, file: f}, nil
}

// NewSource picks a reader for r by file extension.
func NewSource(ext string, r io.Reader) (RowSource, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		return NewCSVSource(r)
	case ".xlsx", ".xlsm":
		return NewXLSXSource(r)
	case ".xls":
		return nil, &ParseError{Msg: "legacy .xls workbooks are not supported, save the file as .xlsx"}
	default:
		return nil, &ParseError{Msg: fmt.Sprintf("unsupported file extension %q", ext)}
	}
}

type fileSource struct {
	RowSource
	file *os.File
}

func (s *fileSource) Close() error {
	err := s.RowSource.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// xlsxSource walks the first worksheet of a workbook.
type xlsxSource struct {
	book   *excelize.File
	rows   *excelize.Rows
	header []string
	index  int
}

// NewXLSXSource reads the first worksheet of an XLSX workbook. The first
// non-blank row is the header.
func NewXLSXSource(r io.Reader) (RowSource, error) {
	br := bufio.NewReader(r)
	if sig, _ := br.Peek(len(oleSignature)); bytes.Equal(sig, oleSignature) {
		return nil, &ParseError{Msg: "legacy .xls workbooks are not supported, save the file as .xlsx"}
	}

	book, err := excelize.OpenReader(br)
	if err != nil {
		return nil, &ParseError{Msg: "not a readable xlsx workbook", Err: err}
	}

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		book.Close()
		return nil, &ParseError{Msg: "workbook has no worksheets"}
	}

	rows, err := book.Rows(sheets[0])
	if err != nil {
		book.Close()
		return nil, &ParseError{Msg: "read worksheet " + sheets[0], Err: err}
	}

	s := &xlsxSource{book: book, rows: rows}
	if err := s.readHeader(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *xlsxSource) readHeader() error {
	for s.rows.Next() {
		cells, err := s.rows.Columns()
		if err != nil {
			return &ParseError{Msg: "read header row", Err: err}
		}
		if isBlank(cells) {
			continue
		}
		header, err := normalizeHeaderRow(cells)
		if err != nil {
			return err
		}
		s.header = header
		return nil
	}
	if err := s.rows.Error(); err != nil {
		return &ParseError{Msg: "read header row", Err: err}
	}
	return &ParseError{Msg: "worksheet is empty, expected a header row"}
}

func (s *xlsxSource) Header() []string { return s.header }

func (s *xlsxSource) Next() (RawRow, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return RawRow{}, &ParseError{Row: s.index + 1, Msg: "read row", Err: err}
		}
		return RawRow{}, io.EOF
	}
	s.index++

	cells, err := s.rows.Columns()
	if err != nil {
		return RawRow{}, &ParseError{Row: s.index, Msg: "read row", Err: err}
	}
	return RawRow{Index: s.index, Cells: cells}, nil
}

func (s *xlsxSource) Close() error {
	var err error
	if s.rows != nil {
		err = s.rows.Close()
	}
	if cerr := s.book.Close(); err == nil {
		err = cerr
	}
	return err
}

// csvSource reads comma separated text.
type csvSource struct {
	r      *csv.Reader
	header []string
	index  int
}

// NewCSVSource reads CSV text. UTF-8 and UTF-16 byte order marks are honoured
// and invalid UTF-8 is replaced with U+FFFD. The first non-blank record is the header.
func NewCSVSource(r io.Reader) (RowSource, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	s := &csvSource{r: cr}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Msg: "file is empty, expected a header row"}
		}
		if err != nil {
			return nil, &ParseError{Msg: "read header row", Err: err}
		}
		if isBlank(rec) {
			continue
		}
		header, err := normalizeHeaderRow(rec)
		if err != nil {
			return nil, err
		}
		s.header = header
		return s, nil
	}
}

func (s *csvSource) Header() []string { return s.header }

func (s *csvSource) Next() (RawRow, error) {
	rec, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return RawRow{}, io.EOF
	}
	s.index++
	if err != nil {
		return RawRow{}, &ParseError{Row: s.index, Msg: "malformed csv record", Err: err}
	}
	return RawRow{Index: s.index, Cells: rec}, nil
}

func (s *csvSource) Close() error { return nil }

func normalizeHeaderRow(cells []string) ([]string, error) {
	header := make([]string, len(cells))
	seen := make(map[string]bool, len(cells))
	for i, c := range cells {
		name := NormalizeHeader(c)
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, &ParseError{Msg: fmt.Sprintf("duplicate column %q in header", name)}
		}
		seen[name] = true
		header[i] = name
	}
	return header, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// rowFromCells pairs cells with header names. Unnamed columns are dropped.
func rowFromCells(header, cells []string) Row {
	row := make(Row, len(header))
	for i, name := range header {
		if name == "" || i >= len(cells) {
			continue
		}
		row[name] = cells[i]
	}
	return row
}
