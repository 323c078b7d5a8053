package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
	"github.com/moiseenkov/cinema/internal/pkg/metrics"
	"github.com/moiseenkov/cinema/internal/queue"
	"github.com/moiseenkov/cinema/internal/repository"
)

// PaymentService drives a ticket from unpaid to paid. Pay only enqueues a
// job; a worker confirms it after a simulated gateway delay. The sweep
// removes unpaid tickets shortly before their showing starts.
type PaymentService struct {
	ledger     *TicketService
	tickets    TicketStore
	dispatcher queue.Dispatcher
	delay      time.Duration
	leadTime   time.Duration
	now        func() time.Time
	newToken   func() string

	Metrics *metrics.Metrics
}

func NewPaymentService(ledger *TicketService, tickets TicketStore, dispatcher queue.Dispatcher, delay, leadTime time.Duration, now func() time.Time) *PaymentService {
	if now == nil {
		now = time.Now
	}
	return &PaymentService{
		ledger:     ledger,
		tickets:    tickets,
		dispatcher: dispatcher,
		delay:      delay,
		leadTime:   leadTime,
		now:        now,
		newToken:   uuid.NewString,
	}
}

// Pay requests payment of ticket id and returns the ticket, still unpaid, with
// the token the confirmation will record as its receipt.
func (s *PaymentService) Pay(ctx context.Context, p model.Principal, id uint64) (*model.Ticket, string, error) {
	t, err := s.ledger.Get(ctx, p, id)
	if err != nil {
		return nil, "", err
	}
	if t.Paid() {
		s.Metrics.Payment("rejected")
		return nil, "", &AlreadyPaidError{TicketID: t.ID}
	}
	job := queue.PaymentRequested{
		TicketID:     t.ID,
		PaymentToken: s.newToken(),
		RequestedAt:  s.now().UTC(),
	}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.Metrics.Payment("failed")
		return nil, "", fmt.Errorf("dispatch payment of ticket %d: %w", t.ID, err)
	}
	s.Metrics.Payment("requested")
	logger.Info("payment requested",
		zap.Uint64("ticket_id", t.ID),
		zap.String("payment_token", job.PaymentToken))
	return t, job.PaymentToken, nil
}

// ProcessPayment is the worker body: it waits out the gateway delay, then
// confirms. Cancelling ctx aborts the wait and the job is retried later.
func (s *PaymentService) ProcessPayment(ctx context.Context, job queue.PaymentRequested) error {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return s.ConfirmPayment(ctx, job)
}

// ConfirmPayment records job.PaymentToken as the receipt of the ticket.
// Redelivering the same job is harmless. Jobs that can never succeed are
// logged and swallowed; only storage failures are returned for a retry.
func (s *PaymentService) ConfirmPayment(ctx context.Context, job queue.PaymentRequested) error {
	log := logger.With(zap.Uint64("ticket_id", job.TicketID), zap.String("payment_token", job.PaymentToken))
	if job.TicketID == 0 || job.PaymentToken == "" {
		log.Warn("payment job is missing ticket_id or payment_token")
		return nil
	}
	switch err := s.tickets.SetReceipt(ctx, job.TicketID, job.PaymentToken); {
	case err == nil:
		s.Metrics.Payment("confirmed")
		log.Info("payment confirmed")
		return nil
	case errors.Is(err, repository.ErrTicketNotFound):
		log.Warn("ticket disappeared before payment was confirmed")
		return nil
	case errors.Is(err, repository.ErrTicketPaid):
		log.Warn("ticket was already paid with another receipt")
		return nil
	default:
		s.Metrics.Payment("failed")
		return fmt.Errorf("confirm payment of ticket %d: %w", job.TicketID, err)
	}
}

// ReleaseUnpaid deletes every unpaid ticket whose showing starts within the
// lead time and returns how many were released.
func (s *PaymentService) ReleaseUnpaid(ctx context.Context) (int64, error) {
	deadline := s.now().Add(s.leadTime).UTC()
	n, err := s.tickets.DeleteUnpaidStartingBy(ctx, deadline)
	if err != nil {
		return 0, fmt.Errorf("release unpaid tickets: %w", err)
	}
	s.Metrics.Swept(n)
	if n > 0 {
		logger.Info("released unpaid tickets", zap.Int64("released", n), zap.Time("deadline", deadline))
	}
	return n, nil
}
