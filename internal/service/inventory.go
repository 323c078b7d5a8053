package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/repository"
)

const (
	msgHallNameTaken  = "hall with this name already exists."
	msgMovieNotUnique = "The fields title, premiere_year must make a unique set."
)

// InventoryService manages halls and movies. Writes require an administrator.
type InventoryService struct {
	halls  HallStore
	movies MovieStore
}

func NewInventoryService(halls HallStore, movies MovieStore) *InventoryService {
	return &InventoryService{halls: halls, movies: movies}
}

func requireAdmin(p model.Principal) error {
	if p.Anonymous() {
		return ErrUnauthenticated
	}
	if !p.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// ----- halls -----

func (s *InventoryService) GetHall(ctx context.Context, id uint64) (*model.Hall, error) {
	h, err := s.halls.GetByID(ctx, id)
	if errors.Is(err, repository.ErrHallNotFound) {
		return nil, ErrNotFound
	}
	return h, err
}

func (s *InventoryService) ListHalls(ctx context.Context, f repository.HallFilter) ([]model.Hall, int, error) {
	return s.halls.List(ctx, f)
}

func (s *InventoryService) CreateHall(ctx context.Context, p model.Principal, patch HallPatch) (*model.Hall, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	h := &model.Hall{}
	if err := s.applyHall(ctx, h, patch, false); err != nil {
		return nil, err
	}
	if err := s.halls.Create(ctx, h); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fieldError("name", msgHallNameTaken)
		}
		return nil, fmt.Errorf("create hall: %w", err)
	}
	return h, nil
}

// UpdateHall applies patch to hall id. With partial false every writable
// field must be present.
func (s *InventoryService) UpdateHall(ctx context.Context, p model.Principal, id uint64, patch HallPatch, partial bool) (*model.Hall, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	h, err := s.GetHall(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyHall(ctx, h, patch, partial); err != nil {
		return nil, err
	}
	if err := s.halls.Update(ctx, h); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fieldError("name", msgHallNameTaken)
		case errors.Is(err, repository.ErrHallNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update hall %d: %w", id, err)
	}
	return h, nil
}

func (s *InventoryService) applyHall(ctx context.Context, h *model.Hall, patch HallPatch, partial bool) error {
	v := &ValidationError{}
	if patch.Name != nil {
		h.Name = trimmed(patch.Name)
	} else if !partial {
		v.Add("name", msgRequired)
	}
	if patch.RowCount != nil {
		h.RowCount = *patch.RowCount
	} else if !partial {
		v.Add("row_count", msgRequired)
	}
	if patch.RowSize != nil {
		h.RowSize = *patch.RowSize
	} else if !partial {
		v.Add("row_size", msgRequired)
	}
	mergeUnflagged(v, checkStruct(h))

	if !v.Has("name") {
		taken, err := s.halls.NameTaken(ctx, h.Name, h.ID)
		if err != nil {
			return fmt.Errorf("check hall name: %w", err)
		}
		if taken {
			v.Add("name", msgHallNameTaken)
		}
	}
	return v.Err()
}

// DeleteHall refuses halls that still have showings.
func (s *InventoryService) DeleteHall(ctx context.Context, p model.Principal, id uint64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	switch err := s.halls.Delete(ctx, id); {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrHallNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrReferenced):
		return &LockedError{Reason: fmt.Sprintf("Hall %d has showings and cannot be removed", id)}
	default:
		return fmt.Errorf("delete hall %d: %w", id, err)
	}
}

// ----- movies -----

func (s *InventoryService) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	m, err := s.movies.GetByID(ctx, id)
	if errors.Is(err, repository.ErrMovieNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *InventoryService) ListMovies(ctx context.Context, f repository.MovieFilter) ([]model.Movie, int, error) {
	return s.movies.List(ctx, f)
}

func (s *InventoryService) CreateMovie(ctx context.Context, p model.Principal, patch MoviePatch) (*model.Movie, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	m := &model.Movie{}
	if err := s.applyMovie(ctx, m, patch, false); err != nil {
		return nil, err
	}
	if err := s.movies.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fieldError(NonFieldErrors, msgMovieNotUnique)
		}
		return nil, fmt.Errorf("create movie: %w", err)
	}
	return m, nil
}

func (s *InventoryService) UpdateMovie(ctx context.Context, p model.Principal, id uint64, patch MoviePatch, partial bool) (*model.Movie, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	m, err := s.GetMovie(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyMovie(ctx, m, patch, partial); err != nil {
		return nil, err
	}
	if err := s.movies.Update(ctx, m); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fieldError(NonFieldErrors, msgMovieNotUnique)
		case errors.Is(err, repository.ErrMovieNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update movie %d: %w", id, err)
	}
	return m, nil
}

// applyMovie merges patch into m. premiere_year is optional even on a full
// update; an explicit null clears it.
func (s *InventoryService) applyMovie(ctx context.Context, m *model.Movie, patch MoviePatch, partial bool) error {
	v := &ValidationError{}
	if patch.Title != nil {
		m.Title = trimmed(patch.Title)
	} else if !partial {
		v.Add("title", msgRequired)
	}
	if patch.DurationMinutes != nil {
		m.DurationMinutes = *patch.DurationMinutes
	} else if !partial {
		v.Add("duration_minutes", msgRequired)
	}
	if patch.PremiereYear.Set {
		m.PremiereYear = patch.PremiereYear.Value
	} else if !partial {
		m.PremiereYear = nil
	}
	mergeUnflagged(v, checkStruct(m))

	if !v.Has("title") && !v.Has("premiere_year") {
		taken, err := s.movies.TitleTaken(ctx, m.Title, m.PremiereYear, m.ID)
		if err != nil {
			return fmt.Errorf("check movie title: %w", err)
		}
		if taken {
			v.AddNonField(msgMovieNotUnique)
		}
	}
	return v.Err()
}

// DeleteMovie refuses movies that still have showings.
func (s *InventoryService) DeleteMovie(ctx context.Context, p model.Principal, id uint64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	switch err := s.movies.Delete(ctx, id); {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrMovieNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrReferenced):
		return &LockedError{Reason: fmt.Sprintf("Movie %d has showings and cannot be removed", id)}
	default:
		return fmt.Errorf("delete movie %d: %w", id, err)
	}
}
