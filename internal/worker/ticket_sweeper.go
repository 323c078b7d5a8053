// Package worker runs periodic maintenance jobs next to the HTTP server.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/moiseenkov/cinema/internal/lock"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
)

const sweepLockKey = "sweep:tickets"

// UnpaidReleaser deletes unpaid tickets of showings that start soon.
type UnpaidReleaser interface {
	ReleaseUnpaid(ctx context.Context) (int64, error)
}

// TryLocker takes a lock without waiting. *lock.LockManager satisfies it.
type TryLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// TicketSweeper releases unpaid tickets on a fixed interval. With a locker
// only one instance sweeps per tick; the others skip.
type TicketSweeper struct {
	releaser UnpaidReleaser
	locker   TryLocker
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTicketSweeper returns a sweeper. locker may be nil.
func NewTicketSweeper(releaser UnpaidReleaser, locker TryLocker, interval time.Duration) *TicketSweeper {
	return &TicketSweeper{
		releaser: releaser,
		locker:   locker,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called. Run it in its own
// goroutine.
func (s *TicketSweeper) Start(ctx context.Context) {
	logger.Info("ticket sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("ticket sweeper stopped (context cancelled)")
			return
		case <-s.stopCh:
			logger.Info("ticket sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop signals Start to return and waits for it.
func (s *TicketSweeper) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

func (s *TicketSweeper) sweep(ctx context.Context) {
	log := logger.Get()

	if s.locker != nil {
		unlock, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
		if errors.Is(err, lock.ErrLockNotAcquired) {
			log.Debug("ticket sweep skipped, another instance holds the lock")
			return
		}
		if err != nil {
			log.Warn("ticket sweep lock failed, sweeping anyway", zap.Error(err))
		} else {
			defer unlock()
		}
	}

	n, err := s.releaser.ReleaseUnpaid(ctx)
	if err != nil {
		log.Error("ticket sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("unpaid tickets released", zap.Int64("released", n))
	} else {
		log.Debug("no unpaid tickets to release")
	}
}
