package web

import (
	"net/http"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleAuditLogs lists audit entries, newest first.
// Filters: entity_type, action, batch_id, limit, offset.
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.AuditFilter{
		EntityType: q.Get("entity_type"),
		Action:     core.AuditAction(q.Get("action")),
		BatchID:    q.Get("batch_id"),
		Limit:      parseIntParam(r, "limit", core.DefaultAuditLimit),
		Offset:     parseIntParam(r, "offset", 0),
	}

	entries, err := s.service.AuditLog(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   clampLimit(filter.Limit),
		"offset":  filter.Offset,
	})
}

// handleAuditLogEntry returns a single audit entry.
func (s *Server) handleAuditLogEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.AuditEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
