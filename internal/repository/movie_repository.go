package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/moiseenkov/cinema/internal/model"
)

// MovieRepo manages persistence for movies.
type MovieRepo struct {
	db *sql.DB
}

func NewMovieRepo(db *sql.DB) *MovieRepo {
	return &MovieRepo{db: db}
}

const movieColumns = `id, title, duration_minutes, premiere_year`

func scanMovie(sc interface{ Scan(...any) error }, m *model.Movie) error {
	var year sql.NullInt64
	if err := sc.Scan(&m.ID, &m.Title, &m.DurationMinutes, &year); err != nil {
		return err
	}
	m.PremiereYear = nil
	if year.Valid {
		y := int(year.Int64)
		m.PremiereYear = &y
	}
	return nil
}

func nullableYear(y *int) any {
	if y == nil {
		return nil
	}
	return *y
}

func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	const q = `INSERT INTO movies (title, duration_minutes, premiere_year) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, m.Title, m.DurationMinutes, nullableYear(m.PremiereYear))
	if err != nil {
		if mysqlCode(err) == mysqlDuplicateEntry {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	const q = `SELECT ` + movieColumns + ` FROM movies WHERE id = ?`
	var m model.Movie
	if err := scanMovie(r.db.QueryRowContext(ctx, q, id), &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, err
	}
	return &m, nil
}

// TitleTaken reports whether another movie has the same title and premiere
// year. The null-safe comparison also catches two movies without a year,
// which the unique index lets through.
func (r *MovieRepo) TitleTaken(ctx context.Context, title string, year *int, excludeID uint64) (bool, error) {
	const q = `SELECT 1 FROM movies WHERE title = ? AND premiere_year <=> ? AND id <> ? LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q, title, nullableYear(year), excludeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *MovieRepo) List(ctx context.Context, f MovieFilter) ([]model.Movie, int, error) {
	var w where
	if f.Title != "" {
		w.add("title = ?", f.Title)
	}
	if f.PremiereYear != nil {
		w.add("premiere_year = ?", *f.PremiereYear)
	}
	if f.DurationMinutes != nil {
		w.add("duration_minutes = ?", *f.DurationMinutes)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := f.Page.limitClause()
	q := `SELECT ` + movieColumns + ` FROM movies` + w.String() + ` ORDER BY id DESC` + limit
	rows, err := r.db.QueryContext(ctx, q, append(w.args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	movies := make([]model.Movie, 0)
	for rows.Next() {
		var m model.Movie
		if err := scanMovie(rows, &m); err != nil {
			return nil, 0, err
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return movies, total, nil
}

func (r *MovieRepo) Update(ctx context.Context, m *model.Movie) error {
	const q = `UPDATE movies SET title = ?, duration_minutes = ?, premiere_year = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, m.Title, m.DurationMinutes, nullableYear(m.PremiereYear), m.ID)
	if err != nil {
		if mysqlCode(err) == mysqlDuplicateEntry {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.GetByID(ctx, m.ID)
	return err
}

func (r *MovieRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		if mysqlCode(err) == mysqlRowIsReferenced {
			return ErrReferenced
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMovieNotFound
	}
	return nil
}
