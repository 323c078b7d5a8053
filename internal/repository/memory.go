package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moiseenkov/cinema/internal/model"
)

// MemoryStore keeps every table in maps guarded by one RWMutex. It enforces
// the same unique keys, foreign keys and conditional writes as the MySQL
// schema, so services behave identically on top of it. It backs
// STORAGE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu sync.RWMutex

	seq      uint64
	halls    map[uint64]model.Hall
	movies   map[uint64]model.Movie
	showings map[uint64]model.Showing
	tickets  map[uint64]model.Ticket
	users    map[uint64]model.User
	tokens   map[string]model.RefreshToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		halls:    make(map[uint64]model.Hall),
		movies:   make(map[uint64]model.Movie),
		showings: make(map[uint64]model.Showing),
		tickets:  make(map[uint64]model.Ticket),
		users:    make(map[uint64]model.User),
		tokens:   make(map[string]model.RefreshToken),
	}
}

func (s *MemoryStore) Halls() *MemoryHallRepo       { return &MemoryHallRepo{s} }
func (s *MemoryStore) Movies() *MemoryMovieRepo     { return &MemoryMovieRepo{s} }
func (s *MemoryStore) Showings() *MemoryShowingRepo { return &MemoryShowingRepo{s} }
func (s *MemoryStore) Tickets() *MemoryTicketRepo   { return &MemoryTicketRepo{s} }
func (s *MemoryStore) Users() *MemoryUserRepo       { return &MemoryUserRepo{s} }
func (s *MemoryStore) Tokens() *MemoryTokenRepo     { return &MemoryTokenRepo{s} }

func (s *MemoryStore) nextID() uint64 {
	s.seq++
	return s.seq
}

// sortedIDs returns the keys of m, highest first.
func sortedIDs[T any](m map[uint64]T) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

func paginate[T any](items []T, p Page) []T {
	lo, hi := p.window(len(items))
	return items[lo:hi]
}

// ----- halls -----

type MemoryHallRepo struct{ s *MemoryStore }

func (r *MemoryHallRepo) nameTaken(name string, excludeID uint64) bool {
	for id, h := range r.s.halls {
		if id != excludeID && h.Name == name {
			return true
		}
	}
	return false
}

func (r *MemoryHallRepo) Create(_ context.Context, h *model.Hall) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.nameTaken(h.Name, 0) {
		return ErrDuplicate
	}
	h.ID = r.s.nextID()
	r.s.halls[h.ID] = *h
	return nil
}

func (r *MemoryHallRepo) GetByID(_ context.Context, id uint64) (*model.Hall, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	h, ok := r.s.halls[id]
	if !ok {
		return nil, ErrHallNotFound
	}
	return &h, nil
}

func (r *MemoryHallRepo) NameTaken(_ context.Context, name string, excludeID uint64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.nameTaken(name, excludeID), nil
}

func (r *MemoryHallRepo) List(_ context.Context, f HallFilter) ([]model.Hall, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Hall, 0)
	for _, id := range sortedIDs(r.s.halls) {
		h := r.s.halls[id]
		if f.Name != "" && h.Name != f.Name {
			continue
		}
		out = append(out, h)
	}
	return paginate(out, f.Page), len(out), nil
}

func (r *MemoryHallRepo) Update(_ context.Context, h *model.Hall) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.halls[h.ID]; !ok {
		return ErrHallNotFound
	}
	if r.nameTaken(h.Name, h.ID) {
		return ErrDuplicate
	}
	r.s.halls[h.ID] = *h
	return nil
}

func (r *MemoryHallRepo) Delete(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.halls[id]; !ok {
		return ErrHallNotFound
	}
	for _, sh := range r.s.showings {
		if sh.HallID == id {
			return ErrReferenced
		}
	}
	delete(r.s.halls, id)
	return nil
}

// ----- movies -----

type MemoryMovieRepo struct{ s *MemoryStore }

func sameYear(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyMovie(m model.Movie) model.Movie {
	if m.PremiereYear != nil {
		y := *m.PremiereYear
		m.PremiereYear = &y
	}
	return m
}

// uniqueClash mirrors the MySQL unique index, which ignores NULL years.
func (r *MemoryMovieRepo) uniqueClash(m *model.Movie) bool {
	if m.PremiereYear == nil {
		return false
	}
	for id, other := range r.s.movies {
		if id != m.ID && other.Title == m.Title && sameYear(other.PremiereYear, m.PremiereYear) {
			return true
		}
	}
	return false
}

func (r *MemoryMovieRepo) Create(_ context.Context, m *model.Movie) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.uniqueClash(m) {
		return ErrDuplicate
	}
	m.ID = r.s.nextID()
	r.s.movies[m.ID] = copyMovie(*m)
	return nil
}

func (r *MemoryMovieRepo) GetByID(_ context.Context, id uint64) (*model.Movie, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.movies[id]
	if !ok {
		return nil, ErrMovieNotFound
	}
	m = copyMovie(m)
	return &m, nil
}

func (r *MemoryMovieRepo) TitleTaken(_ context.Context, title string, year *int, excludeID uint64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, m := range r.s.movies {
		if id != excludeID && m.Title == title && sameYear(m.PremiereYear, year) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryMovieRepo) List(_ context.Context, f MovieFilter) ([]model.Movie, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Movie, 0)
	for _, id := range sortedIDs(r.s.movies) {
		m := r.s.movies[id]
		if f.Title != "" && m.Title != f.Title {
			continue
		}
		if f.PremiereYear != nil && (m.PremiereYear == nil || *m.PremiereYear != *f.PremiereYear) {
			continue
		}
		if f.DurationMinutes != nil && m.DurationMinutes != *f.DurationMinutes {
			continue
		}
		out = append(out, copyMovie(m))
	}
	return paginate(out, f.Page), len(out), nil
}

func (r *MemoryMovieRepo) Update(_ context.Context, m *model.Movie) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.movies[m.ID]; !ok {
		return ErrMovieNotFound
	}
	if r.uniqueClash(m) {
		return ErrDuplicate
	}
	r.s.movies[m.ID] = copyMovie(*m)
	return nil
}

func (r *MemoryMovieRepo) Delete(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.movies[id]; !ok {
		return ErrMovieNotFound
	}
	for _, sh := range r.s.showings {
		if sh.MovieID == id {
			return ErrReferenced
		}
	}
	delete(r.s.movies, id)
	return nil
}

// ----- showings -----

type MemoryShowingRepo struct{ s *MemoryStore }

// load returns the stored showing with the movie duration joined in.
func (r *MemoryShowingRepo) load(id uint64) (model.Showing, bool) {
	sh, ok := r.s.showings[id]
	if !ok {
		return sh, false
	}
	sh.MovieDurationMinutes = r.s.movies[sh.MovieID].DurationMinutes
	return sh, true
}

func (r *MemoryShowingRepo) check(sh *model.Showing) error {
	if _, ok := r.s.halls[sh.HallID]; !ok {
		return ErrReferenced
	}
	if _, ok := r.s.movies[sh.MovieID]; !ok {
		return ErrReferenced
	}
	for id, other := range r.s.showings {
		if id != sh.ID && other.HallID == sh.HallID && other.MovieID == sh.MovieID && other.StartTime.Equal(sh.StartTime) {
			return ErrDuplicate
		}
	}
	return nil
}

func (r *MemoryShowingRepo) Create(_ context.Context, sh *model.Showing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh.StartTime = sh.StartTime.UTC()
	if err := r.check(sh); err != nil {
		return err
	}
	sh.ID = r.s.nextID()
	sh.MovieDurationMinutes = r.s.movies[sh.MovieID].DurationMinutes
	r.s.showings[sh.ID] = *sh
	return nil
}

func (r *MemoryShowingRepo) GetByID(_ context.Context, id uint64) (*model.Showing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sh, ok := r.load(id)
	if !ok {
		return nil, ErrShowingNotFound
	}
	return &sh, nil
}

func (r *MemoryShowingRepo) Preceding(_ context.Context, hallID uint64, at time.Time, excludeID uint64) (*model.Showing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *model.Showing
	for id := range r.s.showings {
		sh, _ := r.load(id)
		if id == excludeID || sh.HallID != hallID || sh.StartTime.After(at) {
			continue
		}
		if best == nil || sh.StartTime.After(best.StartTime) || (sh.StartTime.Equal(best.StartTime) && sh.ID > best.ID) {
			cp := sh
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrShowingNotFound
	}
	return best, nil
}

func (r *MemoryShowingRepo) Following(_ context.Context, hallID uint64, at time.Time, excludeID uint64) (*model.Showing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *model.Showing
	for id := range r.s.showings {
		sh, _ := r.load(id)
		if id == excludeID || sh.HallID != hallID || !sh.StartTime.After(at) {
			continue
		}
		if best == nil || sh.StartTime.Before(best.StartTime) || (sh.StartTime.Equal(best.StartTime) && sh.ID < best.ID) {
			cp := sh
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrShowingNotFound
	}
	return best, nil
}

func (r *MemoryShowingRepo) List(_ context.Context, f ShowingFilter) ([]model.Showing, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Showing, 0)
	for id := range r.s.showings {
		sh, _ := r.load(id)
		if f.HallID != nil && sh.HallID != *f.HallID {
			continue
		}
		if f.MovieID != nil && sh.MovieID != *f.MovieID {
			continue
		}
		if f.Price != nil && !sh.Price.Equal(*f.Price) {
			continue
		}
		if f.StartTime != nil && !sh.StartTime.Equal(*f.StartTime) {
			continue
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, f.Page), len(out), nil
}

func (r *MemoryShowingRepo) Update(_ context.Context, sh *model.Showing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.showings[sh.ID]; !ok {
		return ErrShowingNotFound
	}
	sh.StartTime = sh.StartTime.UTC()
	if err := r.check(sh); err != nil {
		return err
	}
	sh.MovieDurationMinutes = r.s.movies[sh.MovieID].DurationMinutes
	r.s.showings[sh.ID] = *sh
	return nil
}

func (r *MemoryShowingRepo) Delete(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.showings[id]; !ok {
		return ErrShowingNotFound
	}
	for _, t := range r.s.tickets {
		if t.ShowingID == id {
			return ErrReferenced
		}
	}
	delete(r.s.showings, id)
	return nil
}

// ----- tickets -----

type MemoryTicketRepo struct{ s *MemoryStore }

func (r *MemoryTicketRepo) load(id uint64) (model.Ticket, bool) {
	t, ok := r.s.tickets[id]
	if !ok {
		return t, false
	}
	t.Price = r.s.showings[t.ShowingID].Price
	return t, true
}

func (r *MemoryTicketRepo) seatTaken(t *model.Ticket) bool {
	for id, other := range r.s.tickets {
		if id != t.ID && other.ShowingID == t.ShowingID && other.RowNumber == t.RowNumber && other.SeatNumber == t.SeatNumber {
			return true
		}
	}
	return false
}

func (r *MemoryTicketRepo) Create(_ context.Context, t *model.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.showings[t.ShowingID]; !ok {
		return ErrReferenced
	}
	if _, ok := r.s.users[t.HolderID]; !ok {
		return ErrReferenced
	}
	if r.seatTaken(t) {
		return ErrSeatTaken
	}
	t.ID = r.s.nextID()
	t.CreatedAt = t.CreatedAt.UTC()
	r.s.tickets[t.ID] = *t
	*t, _ = r.load(t.ID)
	return nil
}

func (r *MemoryTicketRepo) GetByID(_ context.Context, id uint64) (*model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.load(id)
	if !ok {
		return nil, ErrTicketNotFound
	}
	return &t, nil
}

func (r *MemoryTicketRepo) FindBySeat(_ context.Context, showingID uint64, row, seat int) (*model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, t := range r.s.tickets {
		if t.ShowingID == showingID && t.RowNumber == row && t.SeatNumber == seat {
			found, _ := r.load(id)
			return &found, nil
		}
	}
	return nil, ErrTicketNotFound
}

func (r *MemoryTicketRepo) List(_ context.Context, f TicketFilter) ([]model.Ticket, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Ticket, 0)
	for _, id := range sortedIDs(r.s.tickets) {
		t, _ := r.load(id)
		if f.HolderID != nil && t.HolderID != *f.HolderID {
			continue
		}
		if f.ShowingID != nil && t.ShowingID != *f.ShowingID {
			continue
		}
		if f.RowNumber != nil && t.RowNumber != *f.RowNumber {
			continue
		}
		if f.SeatNumber != nil && t.SeatNumber != *f.SeatNumber {
			continue
		}
		if f.CreatedAt != nil && !t.CreatedAt.Equal(*f.CreatedAt) {
			continue
		}
		out = append(out, t)
	}
	return paginate(out, f.Page), len(out), nil
}

func (r *MemoryTicketRepo) UpdateUnpaid(_ context.Context, t *model.Ticket) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.tickets[t.ID]
	if !ok {
		return false, ErrTicketNotFound
	}
	if cur.Receipt != "" {
		return false, nil
	}
	if _, ok := r.s.showings[t.ShowingID]; !ok {
		return false, ErrReferenced
	}
	if r.seatTaken(t) {
		return false, ErrSeatTaken
	}
	cur.ShowingID, cur.HolderID = t.ShowingID, t.HolderID
	cur.RowNumber, cur.SeatNumber = t.RowNumber, t.SeatNumber
	r.s.tickets[t.ID] = cur
	return true, nil
}

func (r *MemoryTicketRepo) DeleteUnpaid(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return ErrTicketNotFound
	}
	if t.Receipt != "" {
		return ErrTicketPaid
	}
	delete(r.s.tickets, id)
	return nil
}

func (r *MemoryTicketRepo) SetReceipt(_ context.Context, id uint64, receipt string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return ErrTicketNotFound
	}
	switch t.Receipt {
	case "":
		t.Receipt = receipt
		r.s.tickets[id] = t
		return nil
	case receipt:
		return nil
	}
	return ErrTicketPaid
}

func (r *MemoryTicketRepo) DeleteUnpaidStartingBy(_ context.Context, deadline time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.tickets {
		sh, ok := r.s.showings[t.ShowingID]
		if !ok || t.Receipt != "" || sh.StartTime.After(deadline) {
			continue
		}
		delete(r.s.tickets, id)
		n++
	}
	return n, nil
}

// ----- users -----

type MemoryUserRepo struct{ s *MemoryStore }

func (r *MemoryUserRepo) emailTaken(email string, excludeID uint64) bool {
	for id, u := range r.s.users {
		if id != excludeID && u.Email == email {
			return true
		}
	}
	return false
}

func (r *MemoryUserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if r.emailTaken(u.Email, 0) {
		return ErrEmailExists
	}
	now := time.Now().UTC()
	u.ID = r.s.nextID()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id uint64) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUserRepo) List(_ context.Context, f UserFilter) ([]model.User, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email := strings.ToLower(strings.TrimSpace(f.Email))
	out := make([]model.User, 0)
	for _, id := range sortedIDs(r.s.users) {
		u := r.s.users[id]
		if f.ID != nil && u.ID != *f.ID {
			continue
		}
		if email != "" && u.Email != email {
			continue
		}
		if f.IsAdmin != nil && u.IsAdmin != *f.IsAdmin {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		out = append(out, u)
	}
	return paginate(out, f.Page), len(out), nil
}

func (r *MemoryUserRepo) Update(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if r.emailTaken(u.Email, u.ID) {
		return ErrEmailExists
	}
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	r.s.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepo) Deactivate(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsActive = false
	u.UpdatedAt = time.Now().UTC()
	r.s.users[id] = u
	return nil
}

// ----- refresh tokens -----

type MemoryTokenRepo struct{ s *MemoryStore }

func (r *MemoryTokenRepo) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[tokenHash]; ok {
		return ErrDuplicate
	}
	r.s.tokens[tokenHash] = model.RefreshToken{
		ID:        r.s.nextID(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (r *MemoryTokenRepo) ValidateRefresh(_ context.Context, tokenHash string, now time.Time) (uint64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || !now.Before(t.ExpiresAt) {
		return 0, ErrTokenInvalid
	}
	return t.UserID, nil
}

func (r *MemoryTokenRepo) RevokeAllForUser(_ context.Context, userID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	for hash, t := range r.s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			r.s.tokens[hash] = t
		}
	}
	return nil
}
