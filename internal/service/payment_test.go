package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/moiseenkov/cinema/internal/queue"
	"github.com/moiseenkov/cinema/internal/repository"
)

func TestPayDispatchesJob(t *testing.T) {
	f, sh := bookingFixture(t)
	ctx := context.Background()
	tk := f.book(t, f.alice, sh.ID, 1, 1)
	f.payments.newToken = func() string { return "tok-1" }

	f.queue.On("Dispatch", mock.Anything, mock.MatchedBy(func(j queue.PaymentRequested) bool {
		return j.TicketID == tk.ID && j.PaymentToken == "tok-1" && j.RequestedAt.Equal(f.now)
	})).Return(nil).Once()

	got, token, err := f.payments.Pay(ctx, f.alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.False(t, got.Paid())
	f.queue.AssertExpectations(t)
}

func TestPayRejections(t *testing.T) {
	f, sh := bookingFixture(t)
	ctx := context.Background()
	tk := f.book(t, f.alice, sh.ID, 1, 1)

	_, _, err := f.payments.Pay(ctx, f.bob, tk.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.store.Tickets().SetReceipt(ctx, tk.ID, "done"))
	_, _, err = f.payments.Pay(ctx, f.alice, tk.ID)
	var paid *AlreadyPaidError
	require.ErrorAs(t, err, &paid)
	assert.Equal(t, "Ticket "+itoa(tk.ID)+" is paid already", paid.Error())
	f.queue.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestPayDispatchFailure(t *testing.T) {
	f, sh := bookingFixture(t)
	tk := f.book(t, f.alice, sh.ID, 1, 1)
	f.queue.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	_, _, err := f.payments.Pay(context.Background(), f.alice, tk.ID)
	assert.Error(t, err)
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f, sh := bookingFixture(t)
	ctx := context.Background()
	tk := f.book(t, f.alice, sh.ID, 1, 1)
	job := queue.PaymentRequested{TicketID: tk.ID, PaymentToken: "T"}

	require.NoError(t, f.payments.ConfirmPayment(ctx, job))
	require.NoError(t, f.payments.ConfirmPayment(ctx, job))

	got, err := f.tickets.Get(ctx, f.alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Receipt)
	assert.True(t, got.Paid())

	// A second, different token never overwrites the first receipt.
	require.NoError(t, f.payments.ConfirmPayment(ctx, queue.PaymentRequested{TicketID: tk.ID, PaymentToken: "U"}))
	got, err = f.tickets.Get(ctx, f.alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Receipt)
}

func TestConfirmPaymentIgnoresHopelessJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.NoError(t, f.payments.ConfirmPayment(ctx, queue.PaymentRequested{}))
	assert.NoError(t, f.payments.ConfirmPayment(ctx, queue.PaymentRequested{TicketID: 5}))
	assert.NoError(t, f.payments.ConfirmPayment(ctx, queue.PaymentRequested{TicketID: 404, PaymentToken: "T"}))
}

type failingTickets struct {
	TicketStore
}

func (failingTickets) SetReceipt(context.Context, uint64, string) error {
	return errors.New("connection reset")
}

func TestConfirmPaymentReturnsStorageErrors(t *testing.T) {
	f := newFixture(t)
	p := NewPaymentService(f.tickets, failingTickets{f.store.Tickets()}, f.queue, 0, time.Hour, nil)
	assert.Error(t, p.ConfirmPayment(context.Background(), queue.PaymentRequested{TicketID: 1, PaymentToken: "T"}))
}

func TestProcessPaymentHonoursCancellation(t *testing.T) {
	f, sh := bookingFixture(t)
	tk := f.book(t, f.alice, sh.ID, 1, 1)
	p := NewPaymentService(f.tickets, f.store.Tickets(), f.queue, time.Hour, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.ProcessPayment(ctx, queue.PaymentRequested{TicketID: tk.ID, PaymentToken: "T"})
	assert.ErrorIs(t, err, context.Canceled)

	got, err := f.store.Tickets().GetByID(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.False(t, got.Paid())
}

func TestReleaseUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hall := f.hall(t, "Red", 16, 20)
	movie := f.movie(t, "Heat", 60, nil)
	f.now = at("2019-11-25T09:00:00Z")
	soon := f.showing(t, hall.ID, movie.ID, "2019-11-25T10:00:00Z")
	later := f.showing(t, hall.ID, movie.ID, "2019-11-25T12:00:00Z")

	unpaidSoon := f.book(t, f.alice, soon.ID, 1, 1)
	paidSoon := f.book(t, f.alice, soon.ID, 1, 2)
	unpaidLater := f.book(t, f.alice, later.ID, 1, 1)
	require.NoError(t, f.payments.ConfirmPayment(ctx, queue.PaymentRequested{TicketID: paidSoon.ID, PaymentToken: "T"}))

	n, err := f.payments.ReleaseUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.Tickets().GetByID(ctx, unpaidSoon.ID)
	assert.ErrorIs(t, err, repository.ErrTicketNotFound)
	_, err = f.store.Tickets().GetByID(ctx, paidSoon.ID)
	assert.NoError(t, err)
	_, err = f.store.Tickets().GetByID(ctx, unpaidLater.ID)
	assert.NoError(t, err)
}

func TestPaymentScenario(t *testing.T) {
	f, sh := bookingFixture(t)
	ctx := context.Background()
	var payments *PaymentService
	local := queue.NewLocalQueue(func(ctx context.Context, job queue.PaymentRequested) error {
		return payments.ProcessPayment(ctx, job)
	}, 1, 1)
	payments = NewPaymentService(f.tickets, f.store.Tickets(), local, 10*time.Millisecond, 2*time.Hour, nil)
	local.Start(ctx)

	tk := f.book(t, f.alice, sh.ID, 4, 4)
	_, token, err := payments.Pay(ctx, f.alice, tk.ID)
	require.NoError(t, err)
	require.NoError(t, local.Close())

	got, err := f.tickets.Get(ctx, f.alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, token, got.Receipt)

	var locked *LockedError
	assert.ErrorAs(t, f.tickets.Delete(ctx, f.alice, tk.ID), &locked)
}
