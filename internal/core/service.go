package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBatchTimeout bounds a single batch when Options sets none.
const DefaultBatchTimeout = 10 * time.Minute

// finishedRetention is how long finished batches stay in memory before
// status reads go to the cache or the store.
var finishedRetention = 10 * time.Minute

// StatusCache is an optional read-through cache for batch status.
type StatusCache interface {
	GetStatus(ctx context.Context, batchID string) (BatchStatus, bool, error)
	SetStatus(ctx context.Context, b BatchStatus) error
}

// Options configures a Service.
type Options struct {
	UploadDir         string
	AllowedExtensions []string
	MaxFileSize       int64
	Workers           int
	QueueSize         int
	BatchTimeout      time.Duration
	StrictReferences  bool
	Audit             AuditRecorderConfig

	Cache   StatusCache      // optional
	Metrics *Metrics         // optional, private registry when nil
	Now     func() time.Time // optional, time.Now when nil
}

// Service is the import orchestrator: it accepts uploads, runs them on the
// batch queue and answers status queries.
type Service struct {
	store    Store
	registry *Registry
	opts     Options
	queue    *BatchQueue
	audit    *AuditRecorder
	metrics  *Metrics
	now      func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.RWMutex
	batches map[string]*activeBatch
}

type activeBatch struct {
	mu        sync.Mutex
	status    BatchStatus
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

func (b *activeBatch) snapshot() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.status
	st.Errors = append([]RowError{}, b.status.Errors...)
	return st
}

// NewService creates a Service. Call Start before submitting batches.
func NewService(store Store, registry *Registry, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: store is required")
	}
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("core: registry has no entities")
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = []string{".xlsx", ".xlsm", ".csv"}
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 50 * 1024 * 1024
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	audit, err := NewAuditRecorder(store, opts.Audit, opts.Metrics)
	if err != nil {
		return nil, err
	}

	baseCtx, stop := context.WithCancel(context.Background())

	return &Service{
		store:    store,
		registry: registry,
		opts:     opts,
		queue:    NewBatchQueue(opts.Workers, opts.QueueSize, opts.Metrics),
		audit:    audit,
		metrics:  opts.Metrics,
		now:      opts.Now,
		baseCtx:  baseCtx,
		stop:     stop,
		batches:  make(map[string]*activeBatch),
	}, nil
}

// Start launches the batch workers.
func (s *Service) Start() {
	s.queue.Start(s.baseCtx)
}

// Shutdown stops accepting uploads and waits for queued and running batches
// to finish. When ctx expires first, running batches are cancelled (their
// transactions roll back) and Shutdown waits briefly for their audit writes.
func (s *Service) Shutdown(ctx context.Context) error {
	s.queue.Close()

	err := s.queue.WaitForDrain(ctx)
	if err != nil {
		slog.Warn("batch queue did not drain in time, cancelling running batches", "error", err)
		s.stop()
		graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.queue.WaitForDrain(graceCtx)
	}
	s.stop()

	if cerr := s.audit.Close(); err == nil {
		err = cerr
	}
	return err
}

// Registry returns the entity registry the service imports into.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Entities returns the importable entity types in dependency order.
func (s *Service) Entities() []EntityInfo {
	defs := s.registry.All()
	infos := make([]EntityInfo, len(defs))
	for i, d := range defs {
		infos[i] = d.Info
	}
	return infos
}

// QueueStatus reports the batch queue state.
func (s *Service) QueueStatus() QueueStatus {
	return s.queue.Status()
}

// Status returns the state of a batch. In-flight batches are answered from
// memory; finished ones from the cache when configured, else the store.
func (s *Service) Status(ctx context.Context, batchID string) (BatchStatus, error) {
	if _, err := uuid.Parse(batchID); err != nil {
		return BatchStatus{}, ErrBatchNotFound
	}

	if ab := s.active(batchID); ab != nil {
		return ab.snapshot(), nil
	}

	if s.opts.Cache != nil {
		st, ok, err := s.opts.Cache.GetStatus(ctx, batchID)
		if err != nil {
			slog.Debug("status cache read failed", "batch_id", batchID, "error", err)
		} else if ok {
			return st, nil
		}
	}

	st, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return BatchStatus{}, err
	}
	if st.Done() {
		s.cacheStatus(ctx, st)
	}
	return st, nil
}

// Wait blocks until the batch is done or ctx ends.
func (s *Service) Wait(ctx context.Context, batchID string) (BatchStatus, error) {
	if ab := s.active(batchID); ab != nil {
		select {
		case <-ab.done:
			return ab.snapshot(), nil
		case <-ctx.Done():
			return BatchStatus{}, ctx.Err()
		}
	}
	return s.Status(ctx, batchID)
}

// Cancel stops a pending or running batch. Its transaction rolls back and
// the batch finishes with outcome cancelled.
func (s *Service) Cancel(ctx context.Context, batchID string) error {
	ab := s.active(batchID)
	if ab == nil {
		st, err := s.Status(ctx, batchID)
		if err != nil {
			return err
		}
		if st.Done() {
			return ErrBatchFinished
		}
		return fmt.Errorf("batch %s is not owned by this process: %w", batchID, ErrBatchNotFound)
	}

	ab.mu.Lock()
	defer ab.mu.Unlock()
	if ab.status.Done() {
		return ErrBatchFinished
	}
	ab.cancelled = true
	if ab.cancel != nil {
		ab.cancel()
	}
	return nil
}

// ListBatches returns recent batches, newest first.
func (s *Service) ListBatches(ctx context.Context, f BatchFilter) ([]BatchStatus, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}
	list, err := s.store.ListBatches(ctx, f)
	if err != nil {
		return nil, err
	}
	for i, b := range list {
		if ab := s.active(b.BatchID); ab != nil {
			list[i] = ab.snapshot()
		}
	}
	return list, nil
}

// RecoverInterrupted closes batches a previous process left pending or
// running. Their transactions never committed, so they are marked failed
// and audited. Call once at startup, before Start.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	var stale []BatchStatus
	for _, state := range []BatchState{StatePending, StateRunning} {
		list, err := s.store.ListBatches(ctx, BatchFilter{State: state, Limit: 1000})
		if err != nil {
			return 0, fmt.Errorf("list %s batches: %w", state, err)
		}
		stale = append(stale, list...)
	}

	recovered := 0
	for _, b := range stale {
		if s.active(b.BatchID) != nil {
			continue
		}
		finished := s.now().UTC()
		b.State = StateDone
		b.Outcome = OutcomeFailed
		b.Inserted = 0
		b.Error = "interrupted by restart"
		b.FinishedAt = &finished

		s.audit.RecordBatch(ctx, b)
		if err := s.store.FinishBatch(ctx, b); err != nil {
			return recovered, fmt.Errorf("finish batch %s: %w", b.BatchID, err)
		}
		s.metrics.BatchesFinished.WithLabelValues(b.EntityType, string(b.Outcome)).Inc()
		recovered++
	}

	if recovered > 0 {
		slog.Warn("closed interrupted import batches", "count", recovered)
	}
	return recovered, nil
}

// AuditLog lists audit entries.
func (s *Service) AuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListAudit(ctx, f)
}

// AuditEntry returns one audit entry by id.
func (s *Service) AuditEntry(ctx context.Context, id string) (AuditEntry, error) {
	return s.store.GetAudit(ctx, id)
}

func (s *Service) active(batchID string) *activeBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches[batchID]
}

func (s *Service) track(ab *activeBatch) {
	s.mu.Lock()
	s.batches[ab.status.BatchID] = ab
	s.mu.Unlock()
}

// forget drops a finished batch from memory after delay.
func (s *Service) forget(batchID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.batches, batchID)
		s.mu.Unlock()
	})
}

func (s *Service) cacheStatus(ctx context.Context, st BatchStatus) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.SetStatus(ctx, st); err != nil {
		slog.Debug("status cache write failed", "batch_id", st.BatchID, "error", err)
	}
}
