package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
	"github.com/moiseenkov/cinema/internal/pkg/metrics"
	"github.com/moiseenkov/cinema/internal/repository"
	"go.uber.org/zap"
)

const (
	msgSeatBooked      = "Seat is already booked for this showing"
	msgPaidNotRemoved  = "Paid ticket cannot be removed"
	msgLessOrEqualThan = "Ensure this value is less than or equal to %d."
)

// TicketService is the seat ledger. Every read is scoped to the caller:
// non-admins only ever see their own tickets, and someone else's ticket is
// reported as not found.
type TicketService struct {
	tickets  TicketStore
	showings ShowingStore
	halls    HallStore
	users    UserStore
	now      func() time.Time

	Metrics *metrics.Metrics
}

func NewTicketService(tickets TicketStore, showings ShowingStore, halls HallStore, users UserStore, now func() time.Time) *TicketService {
	if now == nil {
		now = time.Now
	}
	return &TicketService{tickets: tickets, showings: showings, halls: halls, users: users, now: now}
}

// Get returns ticket id if p may see it.
func (s *TicketService) Get(ctx context.Context, p model.Principal, id uint64) (*model.Ticket, error) {
	if p.Anonymous() {
		return nil, ErrUnauthenticated
	}
	t, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load ticket %d: %w", id, err)
	}
	if !p.CanSee(t.HolderID) {
		return nil, ErrNotFound
	}
	return t, nil
}

// List narrows f to the caller's own tickets unless p is an administrator.
func (s *TicketService) List(ctx context.Context, p model.Principal, f repository.TicketFilter) ([]model.Ticket, int, error) {
	if p.Anonymous() {
		return nil, 0, ErrUnauthenticated
	}
	if !p.IsAdmin {
		id := p.ID
		f.HolderID = &id
	}
	return s.tickets.List(ctx, f)
}

// Book reserves a seat for the caller, or for the named holder when the
// caller is an administrator.
func (s *TicketService) Book(ctx context.Context, p model.Principal, patch TicketPatch) (*model.Ticket, error) {
	if p.Anonymous() {
		return nil, ErrUnauthenticated
	}
	t := &model.Ticket{HolderID: p.ID}
	if err := s.apply(ctx, p, t, patch, false); err != nil {
		s.Metrics.Booking("rejected")
		return nil, err
	}
	t.CreatedAt = s.now().UTC()
	t.Receipt = ""

	if err := s.tickets.Create(ctx, t); err != nil {
		s.Metrics.Booking("rejected")
		switch {
		case errors.Is(err, repository.ErrSeatTaken):
			return nil, fieldError(NonFieldErrors, msgSeatBooked)
		case errors.Is(err, repository.ErrReferenced):
			return nil, fieldError("showing", invalidPK(t.ShowingID))
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.Metrics.Booking("created")
	logger.Info("ticket booked",
		zap.Uint64("ticket_id", t.ID),
		zap.Uint64("showing_id", t.ShowingID),
		zap.Int("row_number", t.RowNumber),
		zap.Int("seat_number", t.SeatNumber))
	return t, nil
}

// Update moves an unpaid ticket. A paid ticket is returned unchanged, as is
// a ticket that got paid while the update was in flight.
func (s *TicketService) Update(ctx context.Context, p model.Principal, id uint64, patch TicketPatch, partial bool) (*model.Ticket, error) {
	t, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if t.Paid() {
		return t, nil
	}
	if err := s.apply(ctx, p, t, patch, partial); err != nil {
		return nil, err
	}
	if _, err := s.tickets.UpdateUnpaid(ctx, t); err != nil {
		switch {
		case errors.Is(err, repository.ErrSeatTaken):
			return nil, fieldError(NonFieldErrors, msgSeatBooked)
		case errors.Is(err, repository.ErrReferenced):
			return nil, fieldError("showing", invalidPK(t.ShowingID))
		case errors.Is(err, repository.ErrTicketNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update ticket %d: %w", id, err)
	}
	// Re-read either way: when payment won the race the stored record is
	// what the caller must see.
	return s.Get(ctx, p, id)
}

// Delete removes an unpaid ticket. Paid tickets are locked.
func (s *TicketService) Delete(ctx context.Context, p model.Principal, id uint64) error {
	t, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if t.Paid() {
		return &LockedError{Reason: msgPaidNotRemoved}
	}
	switch err := s.tickets.DeleteUnpaid(ctx, id); {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrTicketPaid):
		return &LockedError{Reason: msgPaidNotRemoved}
	case errors.Is(err, repository.ErrTicketNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("delete ticket %d: %w", id, err)
	}
}

// apply merges patch into t and checks the seat against the hall layout and
// the current bookings of the showing.
func (s *TicketService) apply(ctx context.Context, p model.Principal, t *model.Ticket, patch TicketPatch, partial bool) error {
	v := &ValidationError{}
	if patch.Showing != nil {
		t.ShowingID = *patch.Showing
	} else if !partial {
		v.Add("showing", msgRequired)
	}
	if patch.RowNumber != nil {
		t.RowNumber = *patch.RowNumber
	} else if !partial {
		v.Add("row_number", msgRequired)
	}
	if patch.SeatNumber != nil {
		t.SeatNumber = *patch.SeatNumber
	} else if !partial {
		v.Add("seat_number", msgRequired)
	}
	if patch.Holder != nil && p.IsAdmin {
		t.HolderID = *patch.Holder
		if _, err := s.users.GetByID(ctx, t.HolderID); err != nil {
			if !errors.Is(err, repository.ErrUserNotFound) {
				return fmt.Errorf("load holder %d: %w", t.HolderID, err)
			}
			v.Add("holder", invalidPK(t.HolderID))
		}
	}
	mergeUnflagged(v, checkStruct(t))

	var hall *model.Hall
	if !v.Has("showing") {
		sh, err := s.showings.GetByID(ctx, t.ShowingID)
		switch {
		case errors.Is(err, repository.ErrShowingNotFound):
			v.Add("showing", invalidPK(t.ShowingID))
		case err != nil:
			return fmt.Errorf("load showing %d: %w", t.ShowingID, err)
		default:
			hall, err = s.halls.GetByID(ctx, sh.HallID)
			if err != nil {
				return fmt.Errorf("load hall %d: %w", sh.HallID, err)
			}
		}
	}
	if hall == nil {
		return v.Err()
	}

	if !v.Has("row_number") && t.RowNumber > hall.RowCount {
		v.Add("row_number", fmt.Sprintf(msgLessOrEqualThan, hall.RowCount))
	}
	if !v.Has("seat_number") && t.SeatNumber > hall.RowSize {
		v.Add("seat_number", fmt.Sprintf(msgLessOrEqualThan, hall.RowSize))
	}
	if !v.Empty() {
		return v
	}

	other, err := s.tickets.FindBySeat(ctx, t.ShowingID, t.RowNumber, t.SeatNumber)
	switch {
	case errors.Is(err, repository.ErrTicketNotFound):
	case err != nil:
		return fmt.Errorf("check seat: %w", err)
	case other.ID != t.ID:
		v.AddNonField(msgSeatBooked)
	}
	return v.Err()
}
