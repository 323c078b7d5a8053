package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/moiseenkov/cinema/internal/config"
	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/queue"
	"github.com/moiseenkov/cinema/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Dispatch(ctx context.Context, job queue.PaymentRequested) error {
	return m.Called(ctx, job).Error(0)
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
	held int
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	l.held++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held--
	}, nil
}

type fixture struct {
	store     *repository.MemoryStore
	inventory *InventoryService
	showings  *ShowingService
	tickets   *TicketService
	users     *UserService
	payments  *PaymentService
	queue     *mockDispatcher

	now   time.Time
	admin model.Principal
	alice model.Principal
	bob   model.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		now:   at("2019-11-20T12:00:00Z"),
		queue: &mockDispatcher{},
	}
	clock := func() time.Time { return f.now }

	f.inventory = NewInventoryService(f.store.Halls(), f.store.Movies())
	var err error
	f.showings, err = NewShowingService(f.store.Showings(), f.store.Halls(), f.store.Movies(), config.DefaultBooking())
	require.NoError(t, err)
	f.tickets = NewTicketService(f.store.Tickets(), f.store.Showings(), f.store.Halls(), f.store.Users(), clock)
	f.users = NewUserService(f.store.Users(), f.store.Tokens(), config.Config{
		JWTSecret:      "test-secret",
		AccessTTLMin:   5,
		RefreshTTLDays: 1,
		BcryptCost:     bcrypt.MinCost,
	})
	f.users.now = clock
	f.payments = NewPaymentService(f.tickets, f.store.Tickets(), f.queue, 0, 2*time.Hour, clock)

	f.admin = f.addUser(t, "admin@example.com", true)
	f.alice = f.addUser(t, "alice@example.com", false)
	f.bob = f.addUser(t, "bob@example.com", false)
	return f
}

func (f *fixture) addUser(t *testing.T, email string, admin bool) model.Principal {
	t.Helper()
	u, err := f.users.SignUp(context.Background(), model.Principal{ID: 1 << 40, IsAdmin: true}, UserPatch{
		Email:    ptr(email),
		Password: ptr("pass-" + email),
		IsAdmin:  ptr(admin),
	})
	require.NoError(t, err)
	return u.Principal()
}

func (f *fixture) hall(t *testing.T, name string, rows, size int) *model.Hall {
	t.Helper()
	h, err := f.inventory.CreateHall(context.Background(), f.admin, HallPatch{Name: ptr(name), RowCount: ptr(rows), RowSize: ptr(size)})
	require.NoError(t, err)
	return h
}

func (f *fixture) movie(t *testing.T, title string, minutes int, year *int) *model.Movie {
	t.Helper()
	patch := MoviePatch{Title: ptr(title), DurationMinutes: ptr(minutes)}
	if year != nil {
		patch.PremiereYear = IntOf(*year)
	}
	m, err := f.inventory.CreateMovie(context.Background(), f.admin, patch)
	require.NoError(t, err)
	return m
}

func (f *fixture) showing(t *testing.T, hallID, movieID uint64, start string) *model.Showing {
	t.Helper()
	sh, err := f.showings.Create(context.Background(), f.admin, showingPatch(hallID, movieID, start))
	require.NoError(t, err)
	return sh
}

func showingPatch(hallID, movieID uint64, start string) ShowingPatch {
	return ShowingPatch{
		Hall:      ptr(hallID),
		Movie:     ptr(movieID),
		StartTime: ptr(at(start)),
		Price:     ptr(decimal.RequireFromString("9.99")),
	}
}

func (f *fixture) book(t *testing.T, p model.Principal, showingID uint64, row, seat int) *model.Ticket {
	t.Helper()
	tk, err := f.tickets.Book(context.Background(), p, TicketPatch{Showing: ptr(showingID), RowNumber: ptr(row), SeatNumber: ptr(seat)})
	require.NoError(t, err)
	return tk
}

// validation asserts err is a ValidationError and returns its fields.
func validation(t *testing.T, err error) map[string][]string {
	t.Helper()
	var v *ValidationError
	require.ErrorAs(t, err, &v)
	return v.Fields
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }
