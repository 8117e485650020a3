package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"url-shortener/internal/shortener"

	"go.uber.org/zap"
)

// DefaultQueueSize is the job buffer used when a non-positive size is given.
const DefaultQueueSize = 100

// Handler records a single click. It owns its own error handling.
type Handler func(ctx context.Context, click shortener.Click)

// ClickQueue hands clicks to a fixed pool of workers so redirects do not wait
// on click bookkeeping.
type ClickQueue struct {
	jobs        chan shortener.Click
	handler     Handler
	logger      *zap.SugaredLogger
	workerCount int
	mutex       sync.RWMutex
	closed      bool
	wg          sync.WaitGroup

	inProgress atomic.Int64
	processed  atomic.Int64
	rejected   atomic.Int64
}

// NewClickQueue starts workerCount workers draining a buffer of size jobs.
func NewClickQueue(workerCount, size int, handler Handler, logger *zap.SugaredLogger) *ClickQueue {
	if workerCount < 1 {
		workerCount = 1
	}
	if size < 1 {
		size = DefaultQueueSize
	}

	q := &ClickQueue{
		jobs:        make(chan shortener.Click, size),
		handler:     handler,
		logger:      logger,
		workerCount: workerCount,
	}

	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	logger.Infow("Initialized click queue", "workers", workerCount, "capacity", size)
	return q
}

// Submit enqueues click without blocking. It returns false when the queue is
// full or shutting down; the caller is then responsible for the click.
func (q *ClickQueue) Submit(click shortener.Click) bool {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	if q.closed {
		q.rejected.Add(1)
		return false
	}

	select {
	case q.jobs <- click:
		return true
	default:
		q.rejected.Add(1)
		q.logger.Warnw("Click queue is full, handing click back", "capacity", cap(q.jobs), "link_id", click.LinkID)
		return false
	}
}

func (q *ClickQueue) worker(id int) {
	defer q.wg.Done()
	q.logger.Debugw("Click worker started", "worker", id)

	for click := range q.jobs {
		q.inProgress.Add(1)
		start := time.Now()

		q.handler(context.Background(), click)

		q.inProgress.Add(-1)
		q.processed.Add(1)
		q.logger.Debugw("Recorded click", "worker", id, "link_id", click.LinkID, "duration", time.Since(start))
	}

	q.logger.Debugw("Click worker stopped (jobs channel closed)", "worker", id)
}

// GetStatus returns the current status of the click queue.
func (q *ClickQueue) GetStatus() map[string]interface{} {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	return map[string]interface{}{
		"worker_count":      q.workerCount,
		"queue_length":      len(q.jobs),
		"queue_capacity":    cap(q.jobs),
		"in_progress_count": q.inProgress.Load(),
		"processed_count":   q.processed.Load(),
		"rejected_count":    q.rejected.Load(),
		"shutting_down":     q.closed,
	}
}

// Shutdown stops accepting clicks and waits for queued ones to be recorded,
// or for ctx to end.
func (q *ClickQueue) Shutdown(ctx context.Context) error {
	q.mutex.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("Click queue shutdown initiated")
	}
	q.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Click queue drained")
		return nil
	case <-ctx.Done():
		q.logger.Warnw("Click queue shutdown timed out", "queue_length", len(q.jobs))
		return ctx.Err()
	}
}
