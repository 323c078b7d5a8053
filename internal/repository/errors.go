// Package repository contains the data access layer: MySQL repositories used
// in production and an in-memory store with the same behaviour for local runs
// and tests. The sentinel errors below let services tell failure cases apart
// without looking at driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrHallNotFound    = errors.New("hall not found")
	ErrMovieNotFound   = errors.New("movie not found")
	ErrShowingNotFound = errors.New("showing not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrUserNotFound    = errors.New("user not found")

	// ErrDuplicate is returned when a write violates a unique key.
	ErrDuplicate = errors.New("duplicate record")

	// ErrEmailExists is the ErrDuplicate of the users table.
	ErrEmailExists = errors.New("email already exists")

	// ErrSeatTaken is the ErrDuplicate of the tickets table: the seat already
	// has a ticket for that showing.
	ErrSeatTaken = errors.New("seat already booked")

	// ErrReferenced is returned when a delete is blocked by rows that still
	// point at the record.
	ErrReferenced = errors.New("record is referenced")

	// ErrTicketPaid is returned by conditional ticket writes when the ticket
	// already carries a (different) receipt.
	ErrTicketPaid = errors.New("ticket is paid")

	// ErrTokenInvalid covers unknown, revoked and expired refresh tokens.
	ErrTokenInvalid = errors.New("refresh token is invalid")
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}
