package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/moiseenkov/cinema/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, password_hash, is_admin, is_active, created_at, updated_at`

func scanUser(sc interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := sc.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a user with an already hashed password and assigns its ID.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, is_admin, is_active) VALUES (?,?,?,?)",
		u.Email, u.PasswordHash, u.IsAdmin, u.IsActive)
	if err != nil {
		if mysqlCode(err) == mysqlDuplicateEntry {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]model.User, int, error) {
	var w where
	if f.ID != nil {
		w.add("id = ?", *f.ID)
	}
	if f.Email != "" {
		w.add("email = ?", strings.ToLower(strings.TrimSpace(f.Email)))
	}
	if f.IsAdmin != nil {
		w.add("is_admin = ?", *f.IsAdmin)
	}
	if f.IsActive != nil {
		w.add("is_active = ?", *f.IsActive)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := f.Page.limitClause()
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+w.String()+" ORDER BY id DESC"+limit,
		append(w.args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update writes email, password hash and flags of u.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email=?, password_hash=?, is_admin=?, is_active=? WHERE id=?",
		u.Email, u.PasswordHash, u.IsAdmin, u.IsActive, u.ID)
	if err != nil {
		if mysqlCode(err) == mysqlDuplicateEntry {
			return ErrEmailExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.GetByID(ctx, u.ID)
	return err
}

// Deactivate soft-deletes a user; the row stays for tickets that reference it.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET is_active=0 WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.GetByID(ctx, id)
	return err
}
