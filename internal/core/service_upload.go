package core

// service_upload.go implements batch submission and background processing.
//
// Flow:
//  1. Submit validates the entity type, extension and size, spools the file
//     to UploadDir/<entity>/<batch id>_<name>, records a pending batch and
//     queues it. The batch id is returned before any row is read.
//  2. A queue worker opens the file, runs ImportRows inside one transaction
//     and commits unless a file-level error or cancellation occurred.
//  3. The batch audit entry is written, then the final status is stored,
//     and only then does the batch report state done.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/logging"
	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Submit accepts a file for import into entityType and returns the pending
// batch. Processing happens in the background; poll Status or call Wait.
func (s *Service) Submit(ctx context.Context, entityType, fileName string, r io.Reader) (BatchStatus, error) {
	def, ok := s.registry.Get(entityType)
	if !ok {
		return BatchStatus{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entityType)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !s.extensionAllowed(ext) {
		return BatchStatus{}, fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFile, ext, strings.Join(s.opts.AllowedExtensions, ", "))
	}

	batchID := uuid.New()
	meta := MetaFromContext(ctx)
	log := logging.WithFields(ctx, "batch_id", batchID.String(), "entity", entityType)

	path, size, sum, err := s.spool(def.Info.Key, batchID.String(), fileName, r)
	if err != nil {
		return BatchStatus{}, err
	}

	ab := &activeBatch{
		status: BatchStatus{
			BatchID:     batchID.String(),
			EntityType:  def.Info.Key,
			FileName:    filepath.Base(fileName),
			StoredPath:  path,
			FileSize:    size,
			Checksum:    sum,
			Actor:       meta.Actor,
			State:       StatePending,
			Errors:      []RowError{},
			SubmittedAt: s.now().UTC(),
		},
		done: make(chan struct{}),
	}

	if err := s.store.CreateBatch(ctx, ab.status); err != nil {
		os.Remove(path)
		return BatchStatus{}, &PersistenceError{Op: "create batch", Err: err}
	}
	s.track(ab)
	s.metrics.BatchesSubmitted.WithLabelValues(def.Info.Key).Inc()

	accepted := ab.snapshot()
	job := func(workerCtx context.Context) {
		s.processBatch(contextWithMeta(workerCtx, meta), def, ab)
	}
	if err := s.queue.Enqueue(job); err != nil {
		log.Warn("batch rejected by queue", "error", err)
		s.finish(contextWithMeta(context.Background(), meta), ab, BatchStatus{
			Outcome: OutcomeFailed,
			Error:   err.Error(),
		})
		return BatchStatus{}, err
	}

	log.Info("batch accepted", "filename", accepted.FileName, "size", size)
	return accepted, nil
}

func (s *Service) extensionAllowed(ext string) bool {
	for _, allowed := range s.opts.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// spool copies the upload to disk, enforcing MaxFileSize and hashing as it goes.
func (s *Service) spool(entity, batchID, fileName string, r io.Reader) (path string, size int64, sum string, err error) {
	dir := filepath.Join(s.opts.UploadDir, entity)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, "", fmt.Errorf("create upload directory: %w", err)
	}

	name := unsafeNameChars.ReplaceAllString(filepath.Base(fileName), "_")
	path = filepath.Join(dir, batchID+"_"+name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, "", fmt.Errorf("create spool file: %w", err)
	}

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), io.LimitReader(r, s.opts.MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		err = fmt.Errorf("write spool file: %w", err)
	case size > s.opts.MaxFileSize:
		err = fmt.Errorf("%w: limit is %d MB", ErrFileTooLarge, s.opts.MaxFileSize/(1024*1024))
	case size == 0:
		err = ErrEmptyFile
	}
	if err != nil {
		os.Remove(path)
		return "", 0, "", err
	}

	return path, size, hex.EncodeToString(h.Sum(nil)), nil
}

// processBatch runs on a queue worker.
func (s *Service) processBatch(ctx context.Context, def EntityDefinition, ab *activeBatch) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.BatchTimeout)
	defer cancel()
	ctx = logging.WithBatchID(ctx, ab.status.BatchID)
	log := logging.WithFields(ctx, "entity", def.Info.Key)

	ab.mu.Lock()
	if ab.cancelled {
		ab.mu.Unlock()
		s.finish(ctx, ab, BatchStatus{Outcome: OutcomeCancelled, Error: "cancelled before start"})
		return
	}
	started := s.now().UTC()
	ab.cancel = cancel
	ab.status.State = StateRunning
	ab.status.StartedAt = &started
	path := ab.status.StoredPath
	ab.mu.Unlock()

	if err := s.store.StartBatch(ctx, ab.status.BatchID, started); err != nil {
		log.Warn("record batch start failed", "error", err)
	}
	s.cacheStatus(ctx, ab.snapshot())
	log.Info("batch started")

	res, err := s.runImport(ctx, def, ab, path)

	final := BatchStatus{Inserted: res.Inserted, Rejected: res.Rejected, Errors: res.Errors}
	switch {
	case err != nil && ctx.Err() != nil:
		final.Outcome = OutcomeCancelled
		final.Inserted = 0
		final.Error = "cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			final.Error = fmt.Sprintf("timed out after %s", s.opts.BatchTimeout)
		}
	case err != nil:
		final.Outcome = OutcomeFailed
		final.Inserted = 0
		final.Error = err.Error()
	default:
		final.Outcome = outcomeFor(res)
	}

	s.finish(ctx, ab, final)
	s.metrics.BatchDuration.WithLabelValues(def.Info.Key).Observe(time.Since(started).Seconds())
	s.metrics.RowsProcessed.WithLabelValues(def.Info.Key, "inserted").Add(float64(final.Inserted))
	s.metrics.RowsProcessed.WithLabelValues(def.Info.Key, "rejected").Add(float64(final.Rejected))
	log.Info("batch finished",
		"outcome", final.Outcome,
		"inserted", final.Inserted,
		"rejected", final.Rejected,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// runImport opens the spooled file and imports it in one transaction.
func (s *Service) runImport(ctx context.Context, def EntityDefinition, ab *activeBatch, path string) (ImportResult, error) {
	src, err := OpenSource(path)
	if err != nil {
		return ImportResult{Errors: []RowError{}}, err
	}
	defer src.Close()

	var res ImportResult
	opts := ImportOptions{
		BatchID:          ToPgUUID(ab.status.BatchID),
		StrictReferences: s.opts.StrictReferences,
		Now:              s.now,
		Progress: func(_ int, r ImportResult) {
			ab.mu.Lock()
			ab.status.Inserted = r.Inserted
			ab.status.Rejected = r.Rejected
			ab.mu.Unlock()
		},
	}

	err = s.store.ImportTx(ctx, func(w RowWriter) error {
		var ierr error
		res, ierr = ImportRows(ctx, src, def, w, opts)
		return ierr
	})
	if res.Errors == nil {
		res.Errors = []RowError{}
	}
	return res, err
}

// outcomeFor classifies a batch whose rows were all processed.
func outcomeFor(res ImportResult) Outcome {
	switch {
	case res.Rejected == 0:
		return OutcomeCompleted
	case res.Inserted == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// finish audits the batch, stores its final state and then marks it done.
func (s *Service) finish(ctx context.Context, ab *activeBatch, final BatchStatus) {
	finished := s.now().UTC()

	ab.mu.Lock()
	st := ab.status
	ab.mu.Unlock()

	st.Outcome = final.Outcome
	st.Inserted = final.Inserted
	st.Rejected = final.Rejected
	st.Errors = final.Errors
	if st.Errors == nil {
		st.Errors = []RowError{}
	}
	st.Error = final.Error
	st.FinishedAt = &finished

	s.audit.RecordBatch(ctx, st)

	st.State = StateDone
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	r := retry.New(
		retry.Context(storeCtx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
	)
	if err := r.Do(func() error { return s.store.FinishBatch(storeCtx, st) }); err != nil {
		logging.FromContext(ctx).Error("store final batch status failed", "batch_id", st.BatchID, "error", err)
	}

	ab.mu.Lock()
	ab.status = st
	ab.cancel = nil
	ab.mu.Unlock()
	close(ab.done)

	s.cacheStatus(storeCtx, st)
	s.metrics.BatchesFinished.WithLabelValues(st.EntityType, string(st.Outcome)).Inc()
	s.forget(st.BatchID, finishedRetention)
}
