package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/moiseenkov/cinema/internal/model"
)

// TicketRepo manages persistence for tickets. Every write that must not touch
// a paid ticket is a single conditional statement on receipt = '', so a
// concurrent payment confirmation and a delete or sweep cannot both win.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

const ticketSelect = `SELECT t.id, t.showing_id, t.holder_id, t.created_at, t.seat_row, t.seat_number, t.receipt, s.price
	FROM tickets t JOIN showings s ON s.id = t.showing_id`

func scanTicket(sc interface{ Scan(...any) error }, t *model.Ticket) error {
	if err := sc.Scan(&t.ID, &t.ShowingID, &t.HolderID, &t.CreatedAt, &t.RowNumber, &t.SeatNumber, &t.Receipt, &t.Price); err != nil {
		return err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return nil
}

// Create inserts a ticket and reloads it to pick up the showing price. A seat
// that is already booked for the showing yields ErrSeatTaken.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	const q = `INSERT INTO tickets (showing_id, holder_id, created_at, seat_row, seat_number, receipt) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, t.ShowingID, t.HolderID, t.CreatedAt.UTC(), t.RowNumber, t.SeatNumber, t.Receipt)
	if err != nil {
		switch mysqlCode(err) {
		case mysqlDuplicateEntry:
			return ErrSeatTaken
		case mysqlNoReferencedRow:
			return ErrReferenced
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	return scanTicket(r.db.QueryRowContext(ctx, ticketSelect+` WHERE t.id = ?`, id), t)
}

func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := scanTicket(r.db.QueryRowContext(ctx, ticketSelect+` WHERE t.id = ?`, id), &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindBySeat returns the ticket occupying (row, seat) of a showing, or
// ErrTicketNotFound when the seat is free.
func (r *TicketRepo) FindBySeat(ctx context.Context, showingID uint64, row, seat int) (*model.Ticket, error) {
	var t model.Ticket
	err := scanTicket(r.db.QueryRowContext(ctx,
		ticketSelect+` WHERE t.showing_id = ? AND t.seat_row = ? AND t.seat_number = ?`,
		showingID, row, seat), &t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TicketRepo) List(ctx context.Context, f TicketFilter) ([]model.Ticket, int, error) {
	var w where
	if f.HolderID != nil {
		w.add("t.holder_id = ?", *f.HolderID)
	}
	if f.ShowingID != nil {
		w.add("t.showing_id = ?", *f.ShowingID)
	}
	if f.RowNumber != nil {
		w.add("t.seat_row = ?", *f.RowNumber)
	}
	if f.SeatNumber != nil {
		w.add("t.seat_number = ?", *f.SeatNumber)
	}
	if f.CreatedAt != nil {
		w.add("t.created_at = ?", f.CreatedAt.UTC())
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets t`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := f.Page.limitClause()
	q := ticketSelect + w.String() + ` ORDER BY t.id DESC` + limit
	rows, err := r.db.QueryContext(ctx, q, append(w.args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		var t model.Ticket
		if err := scanTicket(rows, &t); err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// receiptOf reads the current receipt of a ticket.
func (r *TicketRepo) receiptOf(ctx context.Context, id uint64) (string, error) {
	var receipt string
	err := r.db.QueryRowContext(ctx, `SELECT receipt FROM tickets WHERE id = ?`, id).Scan(&receipt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTicketNotFound
	}
	return receipt, err
}

// UpdateUnpaid moves an unpaid ticket to new coordinates or a new holder.
// It reports false without writing when the ticket is already paid.
func (r *TicketRepo) UpdateUnpaid(ctx context.Context, t *model.Ticket) (bool, error) {
	const q = `UPDATE tickets SET showing_id = ?, holder_id = ?, seat_row = ?, seat_number = ?
		WHERE id = ? AND receipt = ''`
	res, err := r.db.ExecContext(ctx, q, t.ShowingID, t.HolderID, t.RowNumber, t.SeatNumber, t.ID)
	if err != nil {
		switch mysqlCode(err) {
		case mysqlDuplicateEntry:
			return false, ErrSeatTaken
		case mysqlNoReferencedRow:
			return false, ErrReferenced
		}
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	receipt, err := r.receiptOf(ctx, t.ID)
	if err != nil {
		return false, err
	}
	return receipt == "", nil
}

// DeleteUnpaid removes a ticket unless it has been paid, in which case it
// returns ErrTicketPaid.
func (r *TicketRepo) DeleteUnpaid(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ? AND receipt = ''`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.receiptOf(ctx, id); err != nil {
		return err
	}
	return ErrTicketPaid
}

// SetReceipt records receipt on an unpaid ticket. Recording the same receipt
// again is a no-op; a ticket paid with a different receipt yields
// ErrTicketPaid and a missing one ErrTicketNotFound.
func (r *TicketRepo) SetReceipt(ctx context.Context, id uint64, receipt string) error {
	const q = `UPDATE tickets SET receipt = ? WHERE id = ? AND (receipt = '' OR receipt = ?)`
	res, err := r.db.ExecContext(ctx, q, receipt, id, receipt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	current, err := r.receiptOf(ctx, id)
	if err != nil {
		return err
	}
	if current == receipt {
		return nil
	}
	return ErrTicketPaid
}

// DeleteUnpaidStartingBy removes every unpaid ticket whose showing starts at
// or before deadline, in one statement, and returns how many went away.
func (r *TicketRepo) DeleteUnpaidStartingBy(ctx context.Context, deadline time.Time) (int64, error) {
	const q = `DELETE t FROM tickets t JOIN showings s ON s.id = t.showing_id
		WHERE s.start_time <= ? AND t.receipt = ''`
	res, err := r.db.ExecContext(ctx, q, deadline.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
