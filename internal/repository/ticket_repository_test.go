package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moiseenkov/cinema/internal/model"
)

func newTicketRepo(t *testing.T) (*TicketRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTicketRepo(db), mock
}

var ticketCols = []string{"id", "showing_id", "holder_id", "created_at", "seat_row", "seat_number", "receipt", "price"}

func TestTicketRepo_CreateReloadsPrice(t *testing.T) {
	repo, mock := newTicketRepo(t)
	created := time.Date(2019, 11, 20, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).
		WithArgs(uint64(3), uint64(7), created, 1, 2, "").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.id = ?")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(11, 3, 7, created, 1, 2, "", "9.99"))

	tk := &model.Ticket{ShowingID: 3, HolderID: 7, CreatedAt: created, RowNumber: 1, SeatNumber: 2}
	require.NoError(t, repo.Create(context.Background(), tk))
	assert.Equal(t, uint64(11), tk.ID)
	assert.True(t, decimal.RequireFromString("9.99").Equal(tk.Price))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepo_CreateDuplicateSeat(t *testing.T) {
	repo, mock := newTicketRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '3-1-2' for key 'uq_tickets_seat'"})

	err := repo.Create(context.Background(), &model.Ticket{ShowingID: 3, HolderID: 7, RowNumber: 1, SeatNumber: 2})
	assert.ErrorIs(t, err, ErrSeatTaken)
}

func TestTicketRepo_SetReceipt(t *testing.T) {
	const update = "UPDATE tickets SET receipt = ? WHERE id = ? AND (receipt = '' OR receipt = ?)"
	const read = "SELECT receipt FROM tickets WHERE id = ?"

	t.Run("unpaid ticket gets receipt", func(t *testing.T) {
		repo, mock := newTicketRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WithArgs("tok", uint64(5), "tok").
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.SetReceipt(context.Background(), 5, "tok"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("same receipt twice is a no-op", func(t *testing.T) {
		repo, mock := newTicketRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(read)).WithArgs(uint64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"receipt"}).AddRow("tok"))
		assert.NoError(t, repo.SetReceipt(context.Background(), 5, "tok"))
	})

	t.Run("other receipt is kept", func(t *testing.T) {
		repo, mock := newTicketRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(read)).
			WillReturnRows(sqlmock.NewRows([]string{"receipt"}).AddRow("first"))
		assert.ErrorIs(t, repo.SetReceipt(context.Background(), 5, "second"), ErrTicketPaid)
	})

	t.Run("missing ticket", func(t *testing.T) {
		repo, mock := newTicketRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(read)).WillReturnRows(sqlmock.NewRows([]string{"receipt"}))
		assert.ErrorIs(t, repo.SetReceipt(context.Background(), 5, "tok"), ErrTicketNotFound)
	})
}

func TestTicketRepo_DeleteUnpaid(t *testing.T) {
	const del = "DELETE FROM tickets WHERE id = ? AND receipt = ''"

	t.Run("deleted", func(t *testing.T) {
		repo, mock := newTicketRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(del)).WithArgs(uint64(9)).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.DeleteUnpaid(context.Background(), 9))
	})

	t.Run("paid", func(t *testing.T) {
		repo, mock := newTicketRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(del)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT receipt")).
			WillReturnRows(sqlmock.NewRows([]string{"receipt"}).AddRow("tok"))
		assert.ErrorIs(t, repo.DeleteUnpaid(context.Background(), 9), ErrTicketPaid)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newTicketRepo(t)
		mock.ExpectExec(regexp.QuoteMeta(del)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT receipt")).WillReturnRows(sqlmock.NewRows([]string{"receipt"}))
		assert.ErrorIs(t, repo.DeleteUnpaid(context.Background(), 9), ErrTicketNotFound)
	})
}

func TestTicketRepo_UpdateUnpaidOnPaidTicket(t *testing.T) {
	repo, mock := newTicketRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET showing_id")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT receipt")).
		WillReturnRows(sqlmock.NewRows([]string{"receipt"}).AddRow("tok"))

	applied, err := repo.UpdateUnpaid(context.Background(), &model.Ticket{ID: 4, ShowingID: 1, HolderID: 2, RowNumber: 3, SeatNumber: 3})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestTicketRepo_DeleteUnpaidStartingBy(t *testing.T) {
	repo, mock := newTicketRepo(t)
	deadline := time.Date(2019, 11, 25, 11, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE t FROM tickets t JOIN showings s ON s.id = t.showing_id")).
		WithArgs(deadline).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteUnpaidStartingBy(context.Background(), deadline)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepo_ListScopesByHolder(t *testing.T) {
	repo, mock := newTicketRepo(t)
	holder := uint64(7)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tickets t WHERE t.holder_id = ?")).
		WithArgs(holder).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.holder_id = ? ORDER BY t.id DESC LIMIT ? OFFSET ?")).
		WithArgs(holder, 10, 0).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(1, 3, 7, time.Now(), 1, 1, "", "9.99"))

	items, total, err := repo.List(context.Background(), TicketFilter{HolderID: &holder, Page: Page{Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(7), items[0].HolderID)
}

func TestTicketRepo_UpdateUnpaidMissingShowing(t *testing.T) {
	repo, mock := newTicketRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET showing_id")).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row: a foreign key constraint fails"})

	applied, err := repo.UpdateUnpaid(context.Background(), &model.Ticket{ID: 4, ShowingID: 99, HolderID: 2, RowNumber: 1, SeatNumber: 1})
	assert.ErrorIs(t, err, ErrReferenced)
	assert.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepo_ListByCreatedAt(t *testing.T) {
	repo, mock := newTicketRepo(t)
	created := time.Date(2019, 11, 20, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tickets t WHERE t.created_at = ?")).
		WithArgs(created).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.created_at = ? ORDER BY t.id DESC")).
		WithArgs(created).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(2, 3, 7, created, 1, 1, "", "9.99"))

	items, total, err := repo.List(context.Background(), TicketFilter{CreatedAt: &created})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.True(t, created.Equal(items[0].CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}
