package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const detailPermissionDenied = "You do not have permission to perform this action."

// AllowAny lets every request through.
func AllowAny(next echo.HandlerFunc) echo.HandlerFunc { return next }

// RequireAuth rejects anonymous callers with 401.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if PrincipalFrom(c).Anonymous() {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": detailNotAuthenticated})
		}
		return next(c)
	}
}

// RequireAdmin rejects anonymous callers with 401 and everyone but
// administrators with 403.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := PrincipalFrom(c)
		if p.Anonymous() {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": detailNotAuthenticated})
		}
		if !p.IsAdmin {
			return c.JSON(http.StatusForbidden, echo.Map{"detail": detailPermissionDenied})
		}
		return next(c)
	}
}

// ByMethod picks the permission middleware from a per-verb table and falls
// back to fallback for verbs it does not list.
func ByMethod(policy map[string]echo.MiddlewareFunc, fallback echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := make(map[string]echo.HandlerFunc, len(policy))
		for method, mw := range policy {
			wrapped[method] = mw(next)
		}
		dflt := fallback(next)
		return func(c echo.Context) error {
			if h, ok := wrapped[c.Request().Method]; ok {
				return h(c)
			}
			return dflt(c)
		}
	}
}

// ReadAnyWriteAdmin is the policy for inventory and schedule resources.
func ReadAnyWriteAdmin() echo.MiddlewareFunc {
	return ByMethod(map[string]echo.MiddlewareFunc{
		http.MethodGet:     AllowAny,
		http.MethodHead:    AllowAny,
		http.MethodOptions: AllowAny,
	}, RequireAdmin)
}
