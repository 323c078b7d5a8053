package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/moiseenkov/cinema/internal/model"
)

// HallRepo manages persistence for halls.
type HallRepo struct {
	db *sql.DB
}

func NewHallRepo(db *sql.DB) *HallRepo {
	return &HallRepo{db: db}
}

const hallColumns = `id, name, row_count, row_size`

// Create inserts a hall and assigns the generated ID. A taken name yields
// ErrDuplicate.
func (r *HallRepo) Create(ctx context.Context, h *model.Hall) error {
	const q = `INSERT INTO halls (name, row_count, row_size) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, h.Name, h.RowCount, h.RowSize)
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
	h.ID = uint64(id)
	return nil
}

// GetByID returns ErrHallNotFound if there is no matching row.
func (r *HallRepo) GetByID(ctx context.Context, id uint64) (*model.Hall, error) {
	const q = `SELECT ` + hallColumns + ` FROM halls WHERE id = ?`
	var h model.Hall
	err := r.db.QueryRowContext(ctx, q, id).Scan(&h.ID, &h.Name, &h.RowCount, &h.RowSize)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHallNotFound
		}
		return nil, err
	}
	return &h, nil
}

// NameTaken reports whether another hall (not excludeID) already uses name.
func (r *HallRepo) NameTaken(ctx context.Context, name string, excludeID uint64) (bool, error) {
	const q = `SELECT 1 FROM halls WHERE name = ? AND id <> ? LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q, name, excludeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// List returns one page of halls, newest first, with the total match count.
func (r *HallRepo) List(ctx context.Context, f HallFilter) ([]model.Hall, int, error) {
	var w where
	if f.Name != "" {
		w.add("name = ?", f.Name)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM halls`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := f.Page.limitClause()
	q := `SELECT ` + hallColumns + ` FROM halls` + w.String() + ` ORDER BY id DESC` + limit
	rows, err := r.db.QueryContext(ctx, q, append(w.args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	halls := make([]model.Hall, 0)
	for rows.Next() {
		var h model.Hall
		if err := rows.Scan(&h.ID, &h.Name, &h.RowCount, &h.RowSize); err != nil {
			return nil, 0, err
		}
		halls = append(halls, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return halls, total, nil
}

// Update writes every column of h. MySQL reports zero affected rows when
// nothing changed, so existence is confirmed separately.
func (r *HallRepo) Update(ctx context.Context, h *model.Hall) error {
	const q = `UPDATE halls SET name = ?, row_count = ?, row_size = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, h.Name, h.RowCount, h.RowSize, h.ID)
	if err != nil {
		if mysqlCode(err) == mysqlDuplicateEntry {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.GetByID(ctx, h.ID)
	return err
}

// Delete removes a hall. Halls still used by showings are protected by the
// foreign key and yield ErrReferenced.
func (r *HallRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM halls WHERE id = ?`, id)
	if err != nil {
		if mysqlCode(err) == mysqlRowIsReferenced {
			return ErrReferenced
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrHallNotFound
	}
	return nil
}
