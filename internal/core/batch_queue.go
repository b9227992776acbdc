package core

// batch_queue.go runs import batches in the background.
//
// Submitting a batch only places a job on a bounded channel; a fixed number
// of workers pull jobs and process them. When the channel is full new
// submissions fail fast with ErrTooManyUploads rather than block the HTTP
// request. Close stops intake and WaitForDrain blocks until queued and
// running batches are done, for graceful shutdown.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrTooManyUploads is returned when the batch queue is full.
// Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many pending uploads, please try again later")

// DefaultWorkers and DefaultQueueSize apply when NewBatchQueue gets zero values.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// Job is one unit of background work. ctx is cancelled when the queue's base
// context is.
type Job func(ctx context.Context)

// BatchQueue is a bounded job queue served by a fixed worker pool.
type BatchQueue struct {
	jobs    chan Job
	workers int
	metrics *Metrics
	wg      sync.WaitGroup

	mu      sync.RWMutex
	active  int
	closed  bool
	started bool
}

// NewBatchQueue creates a queue with the given worker count and capacity.
func NewBatchQueue(workers, size int, metrics *Metrics) *BatchQueue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &BatchQueue{
		jobs:    make(chan Job, size),
		workers: workers,
		metrics: metrics,
	}
}

// Start launches the workers. Jobs receive ctx. Calling Start twice is a no-op.
func (q *BatchQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *BatchQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.metrics.QueueDepth.Set(float64(len(q.jobs)))
		q.setActive(1)
		q.run(ctx, job)
		q.setActive(-1)
	}
}

func (q *BatchQueue) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("import job panicked", "panic", r)
		}
	}()
	job(ctx)
}

func (q *BatchQueue) setActive(delta int) {
	q.mu.Lock()
	q.active += delta
	active := q.active
	q.mu.Unlock()
	q.metrics.ActiveBatches.Set(float64(active))
}

// Enqueue adds a job without blocking.
// Returns ErrTooManyUploads when full and ErrServiceClosed after Close.
func (q *BatchQueue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrServiceClosed
	}

	select {
	case q.jobs <- job:
		q.metrics.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		return ErrTooManyUploads
	}
}

// Close stops accepting jobs. Queued jobs still run.
func (q *BatchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.jobs)
}

// WaitForDrain blocks until every worker has exited or ctx is done.
// Call Close first, otherwise workers wait for new jobs forever.
func (q *BatchQueue) WaitForDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueStatus is a snapshot of the queue for monitoring.
type QueueStatus struct {
	Active   int `json:"active"`
	Pending  int `json:"pending"`
	Capacity int `json:"capacity"`
	Workers  int `json:"workers"`
}

// Status returns the current queue state.
func (q *BatchQueue) Status() QueueStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return QueueStatus{
		Active:   q.active,
		Pending:  len(q.jobs),
		Capacity: cap(q.jobs),
		Workers:  q.workers,
	}
}
