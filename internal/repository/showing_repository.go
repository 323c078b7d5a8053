package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/moiseenkov/cinema/internal/model"
)

// ShowingRepo manages persistence for showings. Reads join movies so the
// scheduler gets the running time of each showing without a second query.
type ShowingRepo struct {
	db *sql.DB
}

func NewShowingRepo(db *sql.DB) *ShowingRepo {
	return &ShowingRepo{db: db}
}

const showingSelect = `SELECT s.id, s.hall_id, s.movie_id, s.start_time, s.price, m.duration_minutes
	FROM showings s JOIN movies m ON m.id = s.movie_id`

func scanShowing(sc interface{ Scan(...any) error }, s *model.Showing) error {
	if err := sc.Scan(&s.ID, &s.HallID, &s.MovieID, &s.StartTime, &s.Price, &s.MovieDurationMinutes); err != nil {
		return err
	}
	s.StartTime = s.StartTime.UTC()
	return nil
}

// Create inserts a showing. The (hall, movie, start_time) unique key yields
// ErrDuplicate; an unknown hall or movie yields ErrReferenced.
func (r *ShowingRepo) Create(ctx context.Context, s *model.Showing) error {
	const q = `INSERT INTO showings (hall_id, movie_id, start_time, price) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.HallID, s.MovieID, s.StartTime.UTC(), s.Price)
	if err != nil {
		return showingWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

func showingWriteErr(err error) error {
	switch mysqlCode(err) {
	case mysqlDuplicateEntry:
		return ErrDuplicate
	case mysqlNoReferencedRow:
		return ErrReferenced
	}
	return err
}

func (r *ShowingRepo) GetByID(ctx context.Context, id uint64) (*model.Showing, error) {
	var s model.Showing
	if err := scanShowing(r.db.QueryRowContext(ctx, showingSelect+` WHERE s.id = ?`, id), &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowingNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Preceding returns the showing in hallID with the latest start at or before
// at, ignoring excludeID. ErrShowingNotFound means the hall is free before at.
func (r *ShowingRepo) Preceding(ctx context.Context, hallID uint64, at time.Time, excludeID uint64) (*model.Showing, error) {
	const q = showingSelect + ` WHERE s.hall_id = ? AND s.start_time <= ? AND s.id <> ?
		ORDER BY s.start_time DESC, s.id DESC LIMIT 1`
	return r.neighbour(ctx, q, hallID, at, excludeID)
}

// Following returns the showing in hallID with the earliest start strictly
// after at, ignoring excludeID.
func (r *ShowingRepo) Following(ctx context.Context, hallID uint64, at time.Time, excludeID uint64) (*model.Showing, error) {
	const q = showingSelect + ` WHERE s.hall_id = ? AND s.start_time > ? AND s.id <> ?
		ORDER BY s.start_time ASC, s.id ASC LIMIT 1`
	return r.neighbour(ctx, q, hallID, at, excludeID)
}

func (r *ShowingRepo) neighbour(ctx context.Context, q string, hallID uint64, at time.Time, excludeID uint64) (*model.Showing, error) {
	var s model.Showing
	if err := scanShowing(r.db.QueryRowContext(ctx, q, hallID, at.UTC(), excludeID), &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowingNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns one page of showings, latest start first.
func (r *ShowingRepo) List(ctx context.Context, f ShowingFilter) ([]model.Showing, int, error) {
	var w where
	if f.HallID != nil {
		w.add("s.hall_id = ?", *f.HallID)
	}
	if f.MovieID != nil {
		w.add("s.movie_id = ?", *f.MovieID)
	}
	if f.Price != nil {
		w.add("s.price = ?", *f.Price)
	}
	if f.StartTime != nil {
		w.add("s.start_time = ?", f.StartTime.UTC())
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM showings s`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := f.Page.limitClause()
	q := showingSelect + w.String() + ` ORDER BY s.start_time DESC, s.id DESC` + limit
	rows, err := r.db.QueryContext(ctx, q, append(w.args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	showings := make([]model.Showing, 0)
	for rows.Next() {
		var s model.Showing
		if err := scanShowing(rows, &s); err != nil {
			return nil, 0, err
		}
		showings = append(showings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return showings, total, nil
}

func (r *ShowingRepo) Update(ctx context.Context, s *model.Showing) error {
	const q = `UPDATE showings SET hall_id = ?, movie_id = ?, start_time = ?, price = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, s.HallID, s.MovieID, s.StartTime.UTC(), s.Price, s.ID)
	if err != nil {
		return showingWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.GetByID(ctx, s.ID)
	return err
}

// Delete removes a showing. Showings with tickets are protected by the
// foreign key and yield ErrReferenced.
func (r *ShowingRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM showings WHERE id = ?`, id)
	if err != nil {
		if mysqlCode(err) == mysqlRowIsReferenced {
			return ErrReferenced
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrShowingNotFound
	}
	return nil
}
