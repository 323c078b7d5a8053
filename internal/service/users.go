package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moiseenkov/cinema/internal/config"
	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/utils"
)

var (
	// ErrBadCredentials covers unknown emails, wrong passwords and inactive
	// accounts alike.
	ErrBadCredentials = errors.New("no active account found with the given credentials")
	ErrRefreshInvalid = errors.New("token is invalid or expired")
)

const msgEmailTaken = "user with this email address already exists."

// TokenPair is returned by a successful login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// UserService manages accounts and exchanges credentials for tokens.
type UserService struct {
	users  UserStore
	tokens TokenStore

	secret      string
	accessTTL   int
	refreshDays int
	bcryptCost  int
	now         func() time.Time
}

func NewUserService(users UserStore, tokens TokenStore, cfg config.Config) *UserService {
	return &UserService{
		users:       users,
		tokens:      tokens,
		secret:      cfg.JWTSecret,
		accessTTL:   cfg.AccessTTLMin,
		refreshDays: cfg.RefreshTTLDays,
		bcryptCost:  cfg.BcryptCost,
		now:         time.Now,
	}
}

// SignUp creates an account. Only administrators may set is_admin or create
// inactive accounts.
func (s *UserService) SignUp(ctx context.Context, p model.Principal, patch UserPatch) (*model.User, error) {
	u := &model.User{IsActive: true}
	if err := s.apply(ctx, p, u, patch, false); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, fieldError("email", msgEmailTaken)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	logger.Info("user signed up", zap.Uint64("user_id", u.ID))
	return u, nil
}

// EnsureAdmin creates an active administrator with the given credentials
// unless the email is already registered. It is used to bootstrap a fresh
// deployment.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return false, fmt.Errorf("check admin %s: %w", email, err)
	}
	root := model.Principal{ID: ^uint64(0), IsAdmin: true}
	if _, err := s.SignUp(ctx, root, UserPatch{Email: &email, Password: &password, IsAdmin: ptrTo(true)}); err != nil {
		return false, err
	}
	return true, nil
}

func ptrTo[T any](v T) *T { return &v }

// Get returns user id when p is that user or an administrator.
func (s *UserService) Get(ctx context.Context, p model.Principal, id uint64) (*model.User, error) {
	if p.Anonymous() {
		return nil, ErrUnauthenticated
	}
	if !p.CanSee(id) {
		return nil, ErrNotFound
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return u, nil
}

// List shows everyone to administrators, only themselves to users and
// nobody to anonymous callers.
func (s *UserService) List(ctx context.Context, p model.Principal, f repository.UserFilter) ([]model.User, int, error) {
	if p.Anonymous() {
		return []model.User{}, 0, nil
	}
	if !p.IsAdmin {
		id := p.ID
		f.ID = &id
	}
	return s.users.List(ctx, f)
}

func (s *UserService) Update(ctx context.Context, p model.Principal, id uint64, patch UserPatch, partial bool) (*model.User, error) {
	u, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	wasActive := u.IsActive
	if err := s.apply(ctx, p, u, patch, partial); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, fieldError("email", msgEmailTaken)
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	if patch.Password != nil || (wasActive && !u.IsActive) {
		if err := s.tokens.RevokeAllForUser(ctx, u.ID); err != nil {
			return nil, fmt.Errorf("revoke tokens of user %d: %w", u.ID, err)
		}
	}
	return u, nil
}

// Deactivate is the account delete: the row stays, the user can no longer
// log in and every refresh token is revoked.
func (s *UserService) Deactivate(ctx context.Context, p model.Principal, id uint64) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}
	if err := s.users.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deactivate user %d: %w", id, err)
	}
	if err := s.tokens.RevokeAllForUser(ctx, id); err != nil {
		return fmt.Errorf("revoke tokens of user %d: %w", id, err)
	}
	logger.Info("user deactivated", zap.Uint64("user_id", id))
	return nil
}

func (s *UserService) apply(ctx context.Context, p model.Principal, u *model.User, patch UserPatch, partial bool) error {
	v := &ValidationError{}
	if patch.Email != nil {
		u.Email = strings.ToLower(trimmed(patch.Email))
	} else if !partial {
		v.Add("email", msgRequired)
	}
	var password string
	switch {
	case patch.Password != nil:
		password = *patch.Password
		if password == "" {
			v.Add("password", msgBlank)
		}
	case !partial:
		v.Add("password", msgRequired)
	}
	if p.IsAdmin {
		if patch.IsAdmin != nil {
			u.IsAdmin = *patch.IsAdmin
		}
		if patch.IsActive != nil {
			u.IsActive = *patch.IsActive
		}
	}
	mergeUnflagged(v, checkStruct(u))

	if !v.Has("email") {
		existing, err := s.users.GetByEmail(ctx, u.Email)
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
		case err != nil:
			return fmt.Errorf("check email: %w", err)
		case existing.ID != u.ID:
			v.Add("email", msgEmailTaken)
		}
	}
	if !v.Empty() {
		return v
	}
	if patch.Password != nil {
		hash, err := utils.HashPassword(password, s.bcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	return nil
}

// Login exchanges email and password for an access and refresh token.
func (s *UserService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	v := &ValidationError{}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		v.Add("email", msgRequired)
	}
	if password == "" {
		v.Add("password", msgRequired)
	}
	if !v.Empty() {
		return TokenPair{}, v
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, ErrBadCredentials
		}
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, password) {
		return TokenPair{}, ErrBadCredentials
	}

	access, err := utils.NewAccessToken(s.secret, u.ID, u.IsAdmin, s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.refreshDays)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return TokenPair{Access: access.Token, Refresh: refresh.Raw}, nil
}

// Refresh issues a new access token for a valid refresh token. The refresh
// token itself is not rotated.
func (s *UserService) Refresh(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fieldError("refresh", msgRequired)
	}
	userID, err := s.tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(raw), s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return "", ErrRefreshInvalid
		}
		return "", fmt.Errorf("validate refresh token: %w", err)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrRefreshInvalid
		}
		return "", fmt.Errorf("load user %d: %w", userID, err)
	}
	if !u.IsActive {
		return "", ErrRefreshInvalid
	}
	access, err := utils.NewAccessToken(s.secret, u.ID, u.IsAdmin, s.accessTTL)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return access.Token, nil
}

// Resolve turns the subject of a verified access token into a principal.
// Unknown and inactive users are rejected.
func (s *UserService) Resolve(ctx context.Context, userID uint64) (model.Principal, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.Principal{}, ErrUnauthenticated
		}
		return model.Principal{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !u.IsActive {
		return model.Principal{}, ErrUnauthenticated
	}
	return u.Principal(), nil
}
