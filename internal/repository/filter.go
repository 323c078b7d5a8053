package repository

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Page selects a window of a list ordered by the repository.
type Page struct {
	Limit  int
	Offset int
}

type HallFilter struct {
	Name string
	Page Page
}

type MovieFilter struct {
	Title           string
	PremiereYear    *int
	DurationMinutes *int
	Page            Page
}

type ShowingFilter struct {
	HallID    *uint64
	MovieID   *uint64
	StartTime *time.Time
	Price     *decimal.Decimal
	Page      Page
}

// TicketFilter narrows ticket lists. HolderID doubles as the ownership scope
// for non-admin callers.
type TicketFilter struct {
	HolderID   *uint64
	ShowingID  *uint64
	RowNumber  *int
	SeatNumber *int
	CreatedAt  *time.Time
	Page       Page
}

// UserFilter narrows user lists. ID scopes a non-admin caller to themselves.
type UserFilter struct {
	ID       *uint64
	Email    string
	IsAdmin  *bool
	IsActive *bool
	Page     Page
}

// where accumulates AND-ed predicates for list queries.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// window clamps p to [lo, hi) of a list with n items.
func (p Page) window(n int) (lo, hi int) {
	lo = p.Offset
	if lo > n {
		lo = n
	}
	if lo < 0 {
		lo = 0
	}
	hi = n
	if p.Limit > 0 && lo+p.Limit < n {
		hi = lo + p.Limit
	}
	return lo, hi
}

func (p Page) limitClause() (string, []any) {
	if p.Limit <= 0 {
		return "", nil
	}
	return " LIMIT ? OFFSET ?", []any{p.Limit, p.Offset}
}
