package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
	"github.com/moiseenkov/cinema/internal/service"
	"github.com/moiseenkov/cinema/internal/utils"
)

const principalKey = "principal"

const (
	detailNotAuthenticated = "Authentication credentials were not provided."
	detailInvalidToken     = "Given token not valid for any token type"
	detailInactiveUser     = "User not found or inactive"
)

// Resolver loads the principal behind a verified token subject.
// *service.UserService satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, userID uint64) (model.Principal, error)
}

// Authenticate verifies an optional "Bearer <jwt>" header and stores the
// caller in the context. Requests without the header stay anonymous; a header
// that does not verify, or names an unknown or inactive user, gets 401.
func Authenticate(secret string, users Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" {
				c.Set(principalKey, model.Principal{})
				return next(c)
			}
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			raw = strings.TrimSpace(raw)
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": detailInvalidToken})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": detailInvalidToken})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			p, err := users.Resolve(ctx, claims.UserID)
			if errors.Is(err, service.ErrUnauthenticated) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": detailInactiveUser})
			}
			if err != nil {
				logger.Error("resolve principal failed", zap.Uint64("user_id", claims.UserID), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "A server error occurred."})
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// PrincipalFrom returns the caller stored by Authenticate, or the anonymous
// principal when there is none.
func PrincipalFrom(c echo.Context) model.Principal {
	if p, ok := c.Get(principalKey).(model.Principal); ok {
		return p
	}
	return model.Principal{}
}
