// Package middleware provides HTTP middleware for the web server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/logging"
)

// Logger is an HTTP middleware that writes one structured access log line
// per request.
//
// It must run after chi's RequestID and TrustedRealIP so the line carries the
// request id and the resolved client address. Server errors log at error
// level, client errors at warn, everything else at info.
//
// Log fields:
//   - method, path, status
//   - bytes: response body size
//   - duration_ms: request processing time in milliseconds
//   - ip: client address after proxy resolution
//   - user_agent
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		switch {
		case ww.status >= 500:
			level = slog.LevelError
		case ww.status >= 400:
			level = slog.LevelWarn
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"bytes", ww.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ClientIP(r),
			"user_agent", r.UserAgent(),
		}

		logging.FromContext(r.Context()).Log(r.Context(), level, "request", attrs...)
	})
}

// responseWriter wraps http.ResponseWriter to capture status and size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
