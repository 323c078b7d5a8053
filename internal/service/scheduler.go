package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moiseenkov/cinema/internal/config"
	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
	"github.com/moiseenkov/cinema/internal/pkg/metrics"
	"github.com/moiseenkov/cinema/internal/repository"
	"go.uber.org/zap"
)

const (
	msgBeforePremiere  = "Showing date cannot be before movie's premiere"
	msgShowingNotUniq  = "The fields hall, movie, start_time must make a unique set."
	clockLayout        = "15:04:05"
	hallLockKeyPattern = "showings:hall:%d"
)

// ShowingService schedules showings so that no two of them overlap in a
// hall, including the cleaning and commercial time after each screening.
type ShowingService struct {
	showings ShowingStore
	halls    HallStore
	movies   MovieStore

	earliest time.Duration
	latest   time.Duration
	buffer   time.Duration
	loc      *time.Location

	// Locker, when set, serialises the neighbour check and the write per
	// hall across instances.
	Locker  Locker
	Metrics *metrics.Metrics
}

func NewShowingService(showings ShowingStore, halls HallStore, movies MovieStore, booking config.BookingConfig) (*ShowingService, error) {
	earliest, latest, err := booking.Window()
	if err != nil {
		return nil, err
	}
	loc := booking.Location
	if loc == nil {
		loc = time.UTC
	}
	return &ShowingService{
		showings: showings,
		halls:    halls,
		movies:   movies,
		earliest: earliest,
		latest:   latest,
		buffer:   booking.ServiceBuffer(),
		loc:      loc,
	}, nil
}

func (s *ShowingService) Get(ctx context.Context, id uint64) (*model.Showing, error) {
	sh, err := s.showings.GetByID(ctx, id)
	if errors.Is(err, repository.ErrShowingNotFound) {
		return nil, ErrNotFound
	}
	return sh, err
}

func (s *ShowingService) List(ctx context.Context, f repository.ShowingFilter) ([]model.Showing, int, error) {
	return s.showings.List(ctx, f)
}

func (s *ShowingService) Create(ctx context.Context, p model.Principal, patch ShowingPatch) (*model.Showing, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	sh := &model.Showing{}
	if err := s.save(ctx, sh, patch, false); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *ShowingService) Update(ctx context.Context, p model.Principal, id uint64, patch ShowingPatch, partial bool) (*model.Showing, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	sh, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, sh, patch, partial); err != nil {
		return nil, err
	}
	return sh, nil
}

// Delete refuses showings that still have tickets.
func (s *ShowingService) Delete(ctx context.Context, p model.Principal, id uint64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	switch err := s.showings.Delete(ctx, id); {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrShowingNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrReferenced):
		return &LockedError{Reason: fmt.Sprintf("Showing %d has tickets and cannot be removed", id)}
	default:
		return fmt.Errorf("delete showing %d: %w", id, err)
	}
}

// save merges patch into sh, validates it and writes it. sh.ID == 0 means
// create.
func (s *ShowingService) save(ctx context.Context, sh *model.Showing, patch ShowingPatch, partial bool) error {
	v := &ValidationError{}
	if patch.Hall != nil {
		sh.HallID = *patch.Hall
	} else if !partial {
		v.Add("hall", msgRequired)
	}
	if patch.Movie != nil {
		sh.MovieID = *patch.Movie
	} else if !partial {
		v.Add("movie", msgRequired)
	}
	if patch.StartTime != nil {
		sh.StartTime = patch.StartTime.UTC()
	} else if !partial {
		v.Add("start_time", msgRequired)
	}
	if patch.Price != nil {
		sh.Price = *patch.Price
		for _, m := range checkPrice(sh.Price) {
			v.Add("price", m)
		}
	} else if !partial {
		v.Add("price", msgRequired)
	}

	var movie *model.Movie
	if !v.Has("hall") {
		if _, err := s.halls.GetByID(ctx, sh.HallID); err != nil {
			if !errors.Is(err, repository.ErrHallNotFound) {
				return fmt.Errorf("load hall %d: %w", sh.HallID, err)
			}
			v.Add("hall", invalidPK(sh.HallID))
		}
	}
	if !v.Has("movie") {
		m, err := s.movies.GetByID(ctx, sh.MovieID)
		switch {
		case errors.Is(err, repository.ErrMovieNotFound):
			v.Add("movie", invalidPK(sh.MovieID))
		case err != nil:
			return fmt.Errorf("load movie %d: %w", sh.MovieID, err)
		default:
			movie = m
			sh.MovieDurationMinutes = m.DurationMinutes
		}
	}

	// A partial update that leaves the slot alone (hall, movie and time)
	// cannot create an overlap, so the time rules are skipped.
	slotChanged := patch.StartTime != nil || patch.Hall != nil || patch.Movie != nil
	checkTime := slotChanged && !v.Has("start_time")

	if checkTime && !v.Has("hall") && s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, fmt.Sprintf(hallLockKeyPattern, sh.HallID))
		if err != nil {
			return fmt.Errorf("lock hall %d: %w", sh.HallID, err)
		}
		defer unlock()
	}

	if checkTime {
		if err := s.checkStartTime(ctx, sh, movie, v, !v.Has("hall") && movie != nil); err != nil {
			return err
		}
	}
	if !v.Empty() {
		s.Metrics.Schedule("rejected")
		return v
	}

	var err error
	if sh.ID == 0 {
		err = s.showings.Create(ctx, sh)
	} else {
		err = s.showings.Update(ctx, sh)
	}
	switch {
	case err == nil:
		s.Metrics.Schedule("accepted")
		logger.Debug("showing scheduled",
			zap.Uint64("showing_id", sh.ID),
			zap.Uint64("hall_id", sh.HallID),
			zap.Time("start_time", sh.StartTime))
		return nil
	case errors.Is(err, repository.ErrDuplicate):
		s.Metrics.Schedule("rejected")
		return fieldError(NonFieldErrors, msgShowingNotUniq)
	case errors.Is(err, repository.ErrReferenced):
		return fieldError(NonFieldErrors, "Hall or movie no longer exists.")
	case errors.Is(err, repository.ErrShowingNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("save showing: %w", err)
	}
}

// checkStartTime adds every start_time problem of sh to v. The hall
// neighbour checks run only when withNeighbours is set, i.e. hall and movie
// are known.
func (s *ShowingService) checkStartTime(ctx context.Context, sh *model.Showing, movie *model.Movie, v *ValidationError, withNeighbours bool) error {
	local := sh.StartTime.In(s.loc)
	if movie != nil && movie.PremiereYear != nil && local.Year() < *movie.PremiereYear {
		v.Add("start_time", msgBeforePremiere)
	}

	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	if tod < s.earliest || tod > s.latest {
		v.Add("start_time", fmt.Sprintf("Time value should be in interval [%s, %s]",
			clockOf(s.earliest), clockOf(s.latest)))
	}

	if !withNeighbours {
		return nil
	}

	prev, err := s.showings.Preceding(ctx, sh.HallID, sh.StartTime, sh.ID)
	switch {
	case errors.Is(err, repository.ErrShowingNotFound):
	case err != nil:
		return fmt.Errorf("find preceding showing: %w", err)
	default:
		if free := prev.EndsAt().Add(s.buffer); free.After(sh.StartTime) {
			v.Add("start_time", fmt.Sprintf("Hall is busy by showing %d and it will be free at %s",
				prev.ID, free.UTC().Format(time.RFC3339)))
		}
	}

	next, err := s.showings.Following(ctx, sh.HallID, sh.StartTime, sh.ID)
	switch {
	case errors.Is(err, repository.ErrShowingNotFound):
	case err != nil:
		return fmt.Errorf("find following showing: %w", err)
	default:
		if sh.EndsAt().Add(s.buffer).After(next.StartTime) {
			v.Add("start_time", fmt.Sprintf("Hall is busy by showing %d starting at %s",
				next.ID, next.StartTime.UTC().Format(time.RFC3339)))
		}
	}
	return nil
}

func clockOf(d time.Duration) string {
	return time.Time{}.Add(d).Format(clockLayout)
}
