// Package logging provides structured logging configuration using log/slog.
//
// Loggers pick up chi's request id and, inside background import work, the
// batch id, so every entry for one upload can be correlated from the HTTP
// request through to the audit write.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const batchIDKey ctxKey = iota

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a standalone logger writing to w.
// The audit recorder uses one as its fallback channel.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithBatchID returns a context whose loggers carry batch_id.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey, batchID)
}

// BatchID returns the batch id stored by WithBatchID, if any.
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey).(string)
	return id
}

// FromContext returns the default logger enriched with request_id and
// batch_id when the context carries them.
//
//	func handleUpload(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("upload accepted", "entity", entityType)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if batchID := BatchID(ctx); batchID != "" {
		logger = logger.With("batch_id", batchID)
	}

	return logger
}

// WithFields returns a context logger with additional structured fields.
//
//	log := logging.WithFields(ctx, "entity", "policies")
//	log.Info("batch started")
//	// ...
//	log.Info("batch finished", "inserted", inserted)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
