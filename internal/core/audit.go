package core

// audit.go records import outcomes in the append-only audit log.
//
// The recorder never reports failure to its caller: an import that finished
// must not be turned into an error because the audit store is down. Writes
// are retried on transient errors behind a circuit breaker, and entries that
// still cannot be stored go to a fallback channel (structured log, optionally
// a JSON lines file) where they can be replayed from.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/logging"
	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// AuditAction is the kind of event an audit entry records.
type AuditAction string

const (
	ActionFileImport  AuditAction = "file_import"
	ActionRowRejected AuditAction = "import_row_rejected"
	ActionFileDelete  AuditAction = "file_delete"
)

// AuditSeverity is the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
	SeverityError   AuditSeverity = "error"
)

// AuditEntry is one immutable audit log record.
type AuditEntry struct {
	ID          string         `json:"id"`
	Action      AuditAction    `json:"action"`
	Severity    AuditSeverity  `json:"severity"`
	EntityType  string         `json:"entity_type"`
	BatchID     string         `json:"batch_id,omitempty"`
	Status      string         `json:"status"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	EntityType string
	Action     AuditAction
	BatchID    string
	Limit      int
	Offset     int
}

// DefaultAuditLimit is the page size when a filter sets none.
const DefaultAuditLimit = 20

// MaxAuditLimit caps page sizes.
const MaxAuditLimit = 100

// AuditRecorderConfig configures NewAuditRecorder.
type AuditRecorderConfig struct {
	RecordRejectedRows bool
	FallbackPath       string
	RetryAttempts      int
	RetryDelay         time.Duration
	BreakerFailures    int
	BreakerTimeout     time.Duration
	WriteTimeout       time.Duration
}

// AuditRecorder writes audit entries for finished batches.
type AuditRecorder struct {
	store   AuditStore
	cfg     AuditRecorderConfig
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics

	fallback     *slog.Logger
	fallbackFile *os.File
	mu           sync.Mutex
}

// NewAuditRecorder creates a recorder over store. When cfg.FallbackPath is
// set, entries that cannot be stored are appended there as JSON lines;
// otherwise they are logged through slog.Default.
func NewAuditRecorder(store AuditStore, cfg AuditRecorderConfig, metrics *Metrics) (*AuditRecorder, error) {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	a := &AuditRecorder{store: store, cfg: cfg, metrics: metrics}

	if cfg.FallbackPath != "" {
		f, err := os.OpenFile(cfg.FallbackPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open audit fallback file: %w", err)
		}
		a.fallbackFile = f
		a.fallback = logging.New(f, "info", "json")
	} else {
		a.fallback = slog.Default().With("channel", "audit_fallback")
	}

	failures := uint32(cfg.BreakerFailures)
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("audit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				metrics.AuditBreakerOpen.Set(1)
			} else {
				metrics.AuditBreakerOpen.Set(0)
			}
		},
	})

	return a, nil
}

// Close releases the fallback file, if any. Later fallbacks go to slog.Default.
func (a *AuditRecorder) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fallbackFile == nil {
		return nil
	}
	err := a.fallbackFile.Close()
	a.fallbackFile = nil
	a.fallback = slog.Default().With("channel", "audit_fallback")
	return err
}

// RecordBatch writes the single batch-level entry for a finished batch and,
// when configured, one entry per rejected row.
func (a *AuditRecorder) RecordBatch(ctx context.Context, b BatchStatus) {
	meta := MetaFromContext(ctx)
	if b.Actor != "" {
		meta.Actor = b.Actor
	}

	if a.cfg.RecordRejectedRows {
		for _, re := range b.Errors {
			a.Record(ctx, AuditEntry{
				Action:      ActionRowRejected,
				Severity:    SeverityWarning,
				EntityType:  b.EntityType,
				BatchID:     b.BatchID,
				Status:      string(re.Kind),
				Description: fmt.Sprintf("Row %d rejected: %s", re.RowIndex, re.Reason),
				Details:     map[string]any{"row_index": re.RowIndex, "reason": re.Reason},
				Actor:       meta.Actor,
				IPAddress:   meta.IPAddress,
				UserAgent:   meta.UserAgent,
			})
		}
	}

	details := map[string]any{
		"filename": b.FileName,
		"size":     b.FileSize,
		"inserted": b.Inserted,
		"rejected": b.Rejected,
		"outcome":  string(b.Outcome),
	}
	if b.Checksum != "" {
		details["sha256"] = b.Checksum
	}
	if b.Error != "" {
		details["error"] = b.Error
	}

	a.Record(ctx, AuditEntry{
		Action:      ActionFileImport,
		Severity:    severityFor(b.Outcome),
		EntityType:  b.EntityType,
		BatchID:     b.BatchID,
		Status:      string(b.Outcome),
		Description: batchDescription(b),
		Details:     details,
		Actor:       meta.Actor,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	})
}

// Record stores one entry, falling back when the store cannot take it.
// The write is detached from ctx cancellation: a cancelled batch is still audited.
func (a *AuditRecorder) Record(ctx context.Context, e AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.WriteTimeout)
	defer cancel()

	_, err := a.breaker.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(writeCtx),
			retry.Attempts(uint(a.cfg.RetryAttempts)),
			retry.Delay(a.cfg.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(IsTransient),
		)
		return nil, r.Do(func() error {
			return a.store.InsertAudit(writeCtx, e)
		})
	})
	if err == nil {
		a.metrics.AuditWrites.WithLabelValues("stored").Inc()
		return
	}

	a.metrics.AuditWrites.WithLabelValues("fallback").Inc()
	a.writeFallback(ctx, e, err)
}

func (a *AuditRecorder) writeFallback(ctx context.Context, e AuditEntry, cause error) {
	reason := cause.Error()
	if errors.Is(cause, gobreaker.ErrOpenState) || errors.Is(cause, gobreaker.ErrTooManyRequests) {
		reason = "audit store circuit open"
	}

	logging.FromContext(ctx).Error("audit write failed, using fallback", "audit_id", e.ID, "error", reason)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback.LogAttrs(context.Background(), slog.LevelWarn, "audit_entry",
		slog.String("id", e.ID),
		slog.String("action", string(e.Action)),
		slog.String("severity", string(e.Severity)),
		slog.String("entity_type", e.EntityType),
		slog.String("batch_id", e.BatchID),
		slog.String("status", e.Status),
		slog.String("description", e.Description),
		slog.Any("details", e.Details),
		slog.String("actor", e.Actor),
		slog.Time("created_at", e.CreatedAt),
		slog.String("store_error", reason),
	)
}

func severityFor(o Outcome) AuditSeverity {
	switch o {
	case OutcomeCompleted:
		return SeverityInfo
	case OutcomePartial:
		return SeverityWarning
	default:
		return SeverityError
	}
}

func batchDescription(b BatchStatus) string {
	desc := fmt.Sprintf("File import for %s: %d inserted, %d rejected", b.EntityType, b.Inserted, b.Rejected)
	switch b.Outcome {
	case OutcomeFailed:
		if b.Error != "" {
			desc += " (failed: " + b.Error + ")"
		}
	case OutcomeCancelled:
		desc += " (cancelled)"
	}
	return desc
}
