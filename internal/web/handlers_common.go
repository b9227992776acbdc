package web

import (
	"net/http"
	"strconv"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
)

// parseIntParam parses a non-negative integer query parameter.
// Missing or malformed values fall back to defaultVal.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// clampLimit mirrors the page size the service applies.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return core.DefaultAuditLimit
	case limit > core.MaxAuditLimit:
		return core.MaxAuditLimit
	default:
		return limit
	}
}
