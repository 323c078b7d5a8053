package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moiseenkov/cinema/internal/pkg/logger"
)

var ErrQueueClosed = errors.New("queue is closed")

const localAttempts = 3

// LocalQueue is an in-process Dispatcher for development and tests. Jobs go
// through a buffered channel to a fixed set of workers; a failing job is
// retried a few times before it is dropped.
type LocalQueue struct {
	handler Handler
	workers int
	jobs    chan PaymentRequested

	mu     sync.RWMutex
	closed bool
	g      errgroup.Group

	// cancel aborts in-flight jobs once a drain runs out of time.
	cancel context.CancelFunc
}

func NewLocalQueue(handler Handler, workers, buffer int) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &LocalQueue{handler: handler, workers: workers, jobs: make(chan PaymentRequested, buffer)}
}

// Start launches the workers. Handlers see the values of ctx but not its
// cancellation: accepted jobs keep running until Shutdown gives up on them.
func (q *LocalQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.workers; i++ {
		q.g.Go(func() error {
			for job := range q.jobs {
				q.run(ctx, job)
			}
			return nil
		})
	}
}

func (q *LocalQueue) Dispatch(ctx context.Context, job PaymentRequested) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the workers to drain the buffer.
func (q *LocalQueue) Close() error {
	return q.Shutdown(context.Background())
}

// Shutdown stops accepting jobs and lets the workers drain the buffer. When
// ctx ends first, the remaining jobs are cancelled and dropped, and ctx's
// error is returned once the workers have exited.
func (q *LocalQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- q.g.Wait() }()
	select {
	case err := <-done:
		q.stop()
		return err
	case <-ctx.Done():
		q.stop()
		<-done
		return ctx.Err()
	}
}

func (q *LocalQueue) stop() {
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *LocalQueue) run(ctx context.Context, job PaymentRequested) {
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= localAttempts; attempt++ {
		err := q.handler(ctx, job)
		if err == nil {
			return
		}
		logger.Warn("local-queue: job failed",
			zap.Uint64("ticket_id", job.TicketID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == localAttempts || !sleep(ctx, backoff) {
			break
		}
		backoff *= 2
	}
	logger.Error("local-queue: dropping job", zap.Uint64("ticket_id", job.TicketID))
}
