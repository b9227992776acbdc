package core

// scheduler.go runs background maintenance.
//
// The upload janitor removes spooled upload files older than the configured
// retention. Batch rows and audit entries are never touched: the audit log
// keeps the file name and SHA-256 after the file itself is gone. The job is
// long-running and context-aware; a failed sweep is logged and retried on
// the next tick. DeleteUpload removes a single finished batch's file on request.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JanitorConfig configures StartUploadJanitor.
type JanitorConfig struct {
	Retention     time.Duration // Files older than this are removed
	CheckInterval time.Duration // How often to sweep (default: 1h)
}

// StartUploadJanitor sweeps the upload directory immediately and then every
// CheckInterval until ctx is cancelled. A zero Retention disables it.
func (s *Service) StartUploadJanitor(ctx context.Context, cfg JanitorConfig) {
	if cfg.Retention <= 0 {
		slog.Debug("upload janitor disabled")
		return
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}

	slog.Info("upload janitor started", "retention", cfg.Retention.String(), "interval", cfg.CheckInterval.String())

	s.runJanitor(cfg.Retention)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("upload janitor stopped")
			return
		case <-ticker.C:
			s.runJanitor(cfg.Retention)
		}
	}
}

func (s *Service) runJanitor(retention time.Duration) {
	start := time.Now()
	removed, err := s.SweepUploads(s.now().Add(-retention))
	if err != nil {
		slog.Error("upload sweep failed", "error", err)
		return
	}
	slog.Info("upload sweep completed", "files_removed", removed, "duration_ms", time.Since(start).Milliseconds())
}

// SweepUploads removes spooled files last modified before cutoff, skipping
// files that belong to batches still in memory and not yet done.
func (s *Service) SweepUploads(cutoff time.Time) (int, error) {
	inUse := make(map[string]bool)
	s.mu.RLock()
	for _, ab := range s.batches {
		ab.mu.Lock()
		if !ab.status.Done() {
			inUse[filepath.Clean(ab.status.StoredPath)] = true
		}
		ab.mu.Unlock()
	}
	s.mu.RUnlock()

	removed := 0
	err := filepath.WalkDir(s.opts.UploadDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || inUse[filepath.Clean(path)] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// DeleteUpload removes the spooled file of a finished batch. The batch row
// and its audit entries stay; a file_delete entry records the removal.
func (s *Service) DeleteUpload(ctx context.Context, entityType, batchID string) error {
	if _, err := uuid.Parse(batchID); err != nil {
		return ErrBatchNotFound
	}

	// The status cache does not carry StoredPath, so read memory or the store.
	var st BatchStatus
	if ab := s.active(batchID); ab != nil {
		st = ab.snapshot()
	} else {
		var err error
		if st, err = s.store.GetBatch(ctx, batchID); err != nil {
			return err
		}
	}

	if st.EntityType != entityType {
		return ErrBatchNotFound
	}
	if !st.Done() {
		return ErrBatchActive
	}
	if st.StoredPath == "" || !s.inUploadDir(st.StoredPath) {
		return ErrUploadNotFound
	}

	if err := os.Remove(st.StoredPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrUploadNotFound
		}
		return fmt.Errorf("remove upload: %w", err)
	}

	meta := MetaFromContext(ctx)
	s.audit.Record(ctx, AuditEntry{
		Action:      ActionFileDelete,
		Severity:    SeverityInfo,
		EntityType:  st.EntityType,
		BatchID:     st.BatchID,
		Status:      "deleted",
		Description: fmt.Sprintf("Deleted uploaded file %s", st.FileName),
		Details:     map[string]any{"filename": st.FileName, "sha256": st.Checksum},
		Actor:       meta.Actor,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	})
	slog.Info("upload file deleted", "batch_id", st.BatchID, "entity", st.EntityType, "file", st.FileName)
	return nil
}

func (s *Service) inUploadDir(path string) bool {
	root, err := filepath.Abs(s.opts.UploadDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
