package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ImportOptions configures one run of ImportRows.
type ImportOptions struct {
	BatchID          pgtype.UUID
	StrictReferences bool
	Now              func() time.Time

	// Progress, when set, is called after every processed data row.
	Progress func(processed int, res ImportResult)
}

// ImportRows drives one file through validation, mapping and persistence.
//
// Rows are handled sequentially in file order. A row failing validation,
// reference resolution or its insert is recorded in the result and the
// next row proceeds. Blank rows are skipped but keep their index.
//
// The returned error is file level: a *ParseError for an unusable header or
// unreadable row, or the context error when cancelled. The caller must not
// commit the batch when it is non-nil.
func ImportRows(ctx context.Context, src RowSource, def EntityDefinition, w RowWriter, opts ImportOptions) (ImportResult, error) {
	res := ImportResult{Errors: []RowError{}}

	header := src.Header()
	if err := ValidateHeader(header, def); err != nil {
		return res, err
	}

	validator := NewRowValidator(def.Fields, opts.Now)
	mapper := NewEntityMapper(opts.StrictReferences)
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		raw, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		if isBlank(raw.Cells) {
			continue
		}

		if err := importRow(ctx, def, validator, mapper, w, opts.BatchID, rowFromCells(header, raw.Cells)); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Rejected++
			res.Errors = append(res.Errors, RowError{
				RowIndex: raw.Index,
				Reason:   err.Error(),
				Kind:     rowErrorKind(err),
				Err:      err,
			})
		} else {
			res.Inserted++
		}

		processed++
		if opts.Progress != nil {
			opts.Progress(processed, res)
		}
	}

	return res, nil
}

func importRow(ctx context.Context, def EntityDefinition, v *RowValidator, m *EntityMapper, w RowWriter, batchID pgtype.UUID, row Row) error {
	rec, err := v.Validate(row)
	if err != nil {
		return err
	}

	ent, err := m.Map(ctx, w, def, rec, batchID)
	if err != nil {
		return err
	}

	if _, err := w.Insert(ctx, ent); err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return err
		}
		return &PersistenceError{Op: "insert " + def.Info.Key, Err: err}
	}
	return nil
}
