package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// PreviewSummary contains the summary counts for an upload preview.
type PreviewSummary struct {
	TotalRows       int `json:"total_rows"`
	ValidRows       int `json:"valid_rows"`
	ErrorRows       int `json:"error_rows"`
	ExistingRows    int `json:"existing_rows"`
	DuplicateInFile int `json:"duplicate_in_file"`
}

// ErrorPreview is a row that would be rejected, with every reason found.
type ErrorPreview struct {
	RowIndex int               `json:"row_index"`
	RowKey   string            `json:"row_key,omitempty"`
	Values   map[string]string `json:"values"`
	Errors   []string          `json:"errors"`
}

// DuplicatePreview is a natural key that appears more than once in the file.
type DuplicatePreview struct {
	RowKey     string `json:"row_key"`
	RowIndexes []int  `json:"row_indexes"`
}

// PreviewResponse is the result of a dry run over an upload.
type PreviewResponse struct {
	EntityType       string             `json:"entity_type"`
	Columns          []string           `json:"columns"`
	Summary          PreviewSummary     `json:"summary"`
	ErrorSamples     []ErrorPreview     `json:"error_samples"`
	DuplicateSamples []DuplicatePreview `json:"duplicate_samples"`
	ExistingKeys     []string           `json:"existing_keys"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}

// Sample limits
const (
	maxErrorSamples     = 20
	maxDuplicateSamples = 10
	maxExistingSamples  = 20
)

// errPreviewDone rolls back the read-only preview transaction.
var errPreviewDone = errors.New("preview complete")

// Preview runs a file through validation and reference resolution without
// persisting anything. Every field error of a row is reported, natural keys
// repeated in the file or already stored are flagged, and nothing is
// audited.
func (s *Service) Preview(ctx context.Context, entityType, fileName string, r io.Reader) (*PreviewResponse, error) {
	start := time.Now()

	def, ok := s.registry.Get(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entityType)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !s.extensionAllowed(ext) {
		return nil, fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFile, ext, strings.Join(s.opts.AllowedExtensions, ", "))
	}

	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxFileSize+1))
	switch {
	case err != nil:
		return nil, fmt.Errorf("read upload: %w", err)
	case int64(len(data)) > s.opts.MaxFileSize:
		return nil, fmt.Errorf("%w: limit is %d MB", ErrFileTooLarge, s.opts.MaxFileSize/(1024*1024))
	case len(data) == 0:
		return nil, ErrEmptyFile
	}

	src, err := NewSource(ext, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer src.Close()

	header := src.Header()
	if err := ValidateHeader(header, def); err != nil {
		return nil, err
	}

	resp := &PreviewResponse{
		EntityType:       def.Info.Key,
		Columns:          header,
		ErrorSamples:     []ErrorPreview{},
		DuplicateSamples: []DuplicatePreview{},
		ExistingKeys:     []string{},
	}

	validator := NewRowValidator(def.Fields, s.now)
	mapper := NewEntityMapper(s.opts.StrictReferences)
	seenKeys := make(map[string][]int)
	var keyOrder []string

	err = s.store.ImportTx(ctx, func(w RowWriter) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := src.Next()
			if errors.Is(err, io.EOF) {
				return errPreviewDone
			}
			if err != nil {
				return err
			}
			if isBlank(raw.Cells) {
				continue
			}
			resp.Summary.TotalRows++

			row := rowFromCells(header, raw.Cells)
			key := CleanCell(row[def.Info.NaturalKey])
			if key != "" {
				if _, seen := seenKeys[key]; !seen {
					keyOrder = append(keyOrder, key)
				}
				seenKeys[key] = append(seenKeys[key], raw.Index)
			}

			problems := previewRow(ctx, def, validator, mapper, w, row)
			if len(problems) > 0 {
				resp.Summary.ErrorRows++
				if len(resp.ErrorSamples) < maxErrorSamples {
					resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{
						RowIndex: raw.Index,
						RowKey:   key,
						Values:   row,
						Errors:   problems,
					})
				}
				continue
			}
			resp.Summary.ValidRows++

			if key == "" || len(seenKeys[key]) > 1 {
				continue
			}
			_, exists, err := w.Lookup(ctx, def.Info.Key, key)
			if err != nil {
				return &PersistenceError{Op: "lookup " + def.Info.Key, Err: err}
			}
			if exists {
				resp.Summary.ExistingRows++
				if len(resp.ExistingKeys) < maxExistingSamples {
					resp.ExistingKeys = append(resp.ExistingKeys, key)
				}
			}
		}
	})
	if err != nil && !errors.Is(err, errPreviewDone) {
		return nil, err
	}

	for _, key := range keyOrder {
		indexes := seenKeys[key]
		if len(indexes) < 2 {
			continue
		}
		resp.Summary.DuplicateInFile += len(indexes) - 1
		if len(resp.DuplicateSamples) < maxDuplicateSamples {
			resp.DuplicateSamples = append(resp.DuplicateSamples, DuplicatePreview{RowKey: key, RowIndexes: indexes})
		}
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// previewRow returns every reason the row would be rejected.
func previewRow(ctx context.Context, def EntityDefinition, v *RowValidator, m *EntityMapper, w RowWriter, row Row) []string {
	rec, verrs := v.ValidateAll(row)
	if len(verrs) > 0 {
		problems := make([]string, len(verrs))
		for i, e := range verrs {
			problems[i] = e.Error()
		}
		return problems
	}

	if _, err := m.Map(ctx, w, def, rec, ToPgUUID("")); err != nil {
		return []string{err.Error()}
	}
	return nil
}
