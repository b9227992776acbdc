package web

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthTimeout bounds each dependency probe.
const healthTimeout = 2 * time.Second

// handleOverview returns the dashboard summary across all entities.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.service.Overview(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleHealth probes every registered dependency and reports the queue.
// Any failing probe turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.opts.Checks))
	for name := range s.opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := s.opts.Checks[name].Ping(ctx)
		cancel()

		if err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
		"queue":  s.service.QueueStatus(),
	})
}
