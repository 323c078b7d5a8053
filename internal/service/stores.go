package service

import (
	"context"
	"time"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/repository"
)

// The store interfaces below are satisfied by both the MySQL repositories and
// the in-memory store of package repository.

type HallStore interface {
	Create(ctx context.Context, h *model.Hall) error
	GetByID(ctx context.Context, id uint64) (*model.Hall, error)
	NameTaken(ctx context.Context, name string, excludeID uint64) (bool, error)
	List(ctx context.Context, f repository.HallFilter) ([]model.Hall, int, error)
	Update(ctx context.Context, h *model.Hall) error
	Delete(ctx context.Context, id uint64) error
}

type MovieStore interface {
	Create(ctx context.Context, m *model.Movie) error
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
	TitleTaken(ctx context.Context, title string, year *int, excludeID uint64) (bool, error)
	List(ctx context.Context, f repository.MovieFilter) ([]model.Movie, int, error)
	Update(ctx context.Context, m *model.Movie) error
	Delete(ctx context.Context, id uint64) error
}

type ShowingStore interface {
	Create(ctx context.Context, s *model.Showing) error
	GetByID(ctx context.Context, id uint64) (*model.Showing, error)
	Preceding(ctx context.Context, hallID uint64, at time.Time, excludeID uint64) (*model.Showing, error)
	Following(ctx context.Context, hallID uint64, at time.Time, excludeID uint64) (*model.Showing, error)
	List(ctx context.Context, f repository.ShowingFilter) ([]model.Showing, int, error)
	Update(ctx context.Context, s *model.Showing) error
	Delete(ctx context.Context, id uint64) error
}

type TicketStore interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	FindBySeat(ctx context.Context, showingID uint64, row, seat int) (*model.Ticket, error)
	List(ctx context.Context, f repository.TicketFilter) ([]model.Ticket, int, error)
	UpdateUnpaid(ctx context.Context, t *model.Ticket) (bool, error)
	DeleteUnpaid(ctx context.Context, id uint64) error
	SetReceipt(ctx context.Context, id uint64, receipt string) error
	DeleteUnpaidStartingBy(ctx context.Context, deadline time.Time) (int64, error)
}

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, f repository.UserFilter) ([]model.User, int, error)
	Update(ctx context.Context, u *model.User) error
	Deactivate(ctx context.Context, id uint64) error
}

type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// Locker serialises critical sections across instances. *lock.LockManager
// satisfies it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Page is the window a list call returns.
type Page = repository.Page
