package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. statusFor picks the HTTP status from the error taxonomy
//  4. core.MapError supplies the user-facing message and support code
//  5. The technical error is logged with the request id for correlation

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/JonMunkholm/InsuranceDashboard/internal/logging"
)

// retryAfterSeconds is advertised when the import queue is saturated.
const retryAfterSeconds = "30"

// ErrorResponse is the JSON body of every API error.
// Code is the machine-readable support reference.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	respondErrorJSON(w, msg, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownEntity),
		errors.Is(err, core.ErrUnsupportedFile),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyUploads),
		errors.Is(err, core.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrBatchNotFound),
		errors.Is(err, core.ErrAuditNotFound),
		errors.Is(err, core.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrBatchFinished),
		errors.Is(err, core.ErrBatchActive):
		return http.StatusConflict
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
