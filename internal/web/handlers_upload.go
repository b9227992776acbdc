package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is allowed on top of the file size for form boundaries
// and part headers.
const multipartOverhead = 1 << 20

// formMemory is how much of a multipart form is held in memory before the
// standard library spills it to a temp file.
const formMemory = 8 << 20

// uploadAccepted is the 202 body of a file submission.
type uploadAccepted struct {
	BatchID    string            `json:"batch_id"`
	Status     core.BatchState   `json:"status"`
	EntityType string            `json:"entity_type"`
	FileName   string            `json:"filename"`
	Size       int64             `json:"size"`
	Links      map[string]string `json:"links"`
}

// handleUpload accepts a spreadsheet and queues it for import.
// The response is sent before any row is read.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "data_type")
	if _, ok := s.service.Registry().Get(entity); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownEntity, entity))
		return
	}

	file, header, err := s.formFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	st, err := s.service.Submit(r.Context(), entity, header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	statusURL := "/file-upload/status/" + st.BatchID
	w.Header().Set("Location", statusURL)
	writeJSON(w, http.StatusAccepted, uploadAccepted{
		BatchID:    st.BatchID,
		Status:     st.State,
		EntityType: st.EntityType,
		FileName:   st.FileName,
		Size:       st.FileSize,
		Links: map[string]string{
			"status": statusURL,
			"cancel": statusURL + "/cancel",
		},
	})
}

// handlePreview dry-runs a spreadsheet: validation and reference checks
// without persisting or auditing anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "data_type")
	if _, ok := s.service.Registry().Get(entity); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownEntity, entity))
		return
	}

	file, header, err := s.formFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	result, err := s.service.Preview(r.Context(), entity, header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// formFile reads the "file" part of a multipart request, bounding the body
// to the configured maximum file size.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, nil, fmt.Errorf("%w: limit is %d MB", core.ErrFileTooLarge, maxSize/(1024*1024))
		}
		return nil, nil, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, core.ErrNoFile
	}
	if header.Size > maxSize {
		file.Close()
		return nil, nil, fmt.Errorf("%w: limit is %d MB", core.ErrFileTooLarge, maxSize/(1024*1024))
	}
	return file, header, nil
}

// handleBatchStatus returns the aggregate state of a batch, including every
// rejected row once it is done.
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(r.Context(), chi.URLParam(r, "batch_id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCancelBatch cancels a pending or running batch.
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if err := s.service.Cancel(r.Context(), batchID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID,
		"status":   "cancelling",
	})
}

// handleDeleteUpload removes the stored file of a finished batch.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "data_type")
	if _, ok := s.service.Registry().Get(entity); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownEntity, entity))
		return
	}

	batchID := chi.URLParam(r, "batch_id")
	if err := s.service.DeleteUpload(r.Context(), entity, batchID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"batch_id": batchID,
		"status":   "deleted",
	})
}

// handleListBatches lists recent batches, newest first.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.BatchFilter{
		EntityType: q.Get("entity_type"),
		State:      core.BatchState(q.Get("status")),
		Limit:      parseIntParam(r, "limit", core.DefaultAuditLimit),
		Offset:     parseIntParam(r, "offset", 0),
	}

	batches, err := s.service.ListBatches(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"limit":   clampLimit(filter.Limit),
		"offset":  filter.Offset,
	})
}

// handleEntities lists the importable data types and their columns.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entities":        s.service.Entities(),
		"max_file_size":   s.cfg.Upload.MaxFileSize,
		"file_extensions": s.cfg.Upload.AllowedExtensions,
	})
}
