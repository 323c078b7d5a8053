package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/moiseenkov/cinema/internal/pkg/logger"
	"github.com/moiseenkov/cinema/internal/service"
)

const (
	detailNotFound         = "Not found."
	detailNotAuthenticated = "Authentication credentials were not provided."
	detailPermissionDenied = "You do not have permission to perform this action."
	detailServerError      = "A server error occurred."
)

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, echo.Map{"detail": msg})
}

// respondError writes the response for an error returned by a service.
func respondError(c echo.Context, err error) error {
	var (
		berr   *bodyError
		verr   *service.ValidationError
		locked *service.LockedError
		paid   *service.AlreadyPaidError
	)
	switch {
	case errors.As(err, &berr):
		if berr.field != "" {
			return c.JSON(http.StatusBadRequest, map[string][]string{berr.field: {berr.msg}})
		}
		return detail(c, http.StatusBadRequest, berr.msg)
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, verr.Fields)
	case errors.As(err, &locked):
		return detail(c, http.StatusLocked, locked.Reason)
	case errors.As(err, &paid):
		return detail(c, http.StatusBadRequest, paid.Error())
	case errors.Is(err, service.ErrNotFound):
		return detail(c, http.StatusNotFound, detailNotFound)
	case errors.Is(err, service.ErrUnauthenticated):
		return detail(c, http.StatusUnauthorized, detailNotAuthenticated)
	case errors.Is(err, service.ErrForbidden):
		return detail(c, http.StatusForbidden, detailPermissionDenied)
	case errors.Is(err, service.ErrBadCredentials):
		return detail(c, http.StatusUnauthorized, "No active account found with the given credentials")
	case errors.Is(err, service.ErrRefreshInvalid):
		return detail(c, http.StatusUnauthorized, "Token is invalid or expired")
	}
	logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path),
		zap.Error(err),
	)
	return detail(c, http.StatusInternalServerError, detailServerError)
}

// bodyError is a request body that could not be decoded.
type bodyError struct {
	field string
	msg   string
}

func (e *bodyError) Error() string { return e.msg }

// bindBody decodes the JSON body into dst. Type mismatches are reported
// against the offending field.
func bindBody(c echo.Context, dst any) error {
	err := (&echo.DefaultBinder{}).BindBody(c, dst)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &bodyError{field: typeErr.Field, msg: typeMessage(typeErr)}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &bodyError{msg: "JSON parse error - " + syntaxErr.Error()}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return &bodyError{msg: msg}
		}
	}
	return &bodyError{msg: "Malformed request body."}
}

func typeMessage(e *json.UnmarshalTypeError) string {
	switch e.Type.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return "A valid integer is required."
	case reflect.Bool:
		return "Must be a valid boolean."
	case reflect.String:
		return "Not a valid string."
	}
	return "Invalid value."
}

// HTTPErrorHandler renders errors that escape the handlers, mostly echo's own
// 404, 405 and 413, as {"detail": ...}.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := detailServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch code {
		case http.StatusNotFound:
			message = detailNotFound
		case http.StatusMethodNotAllowed:
			message = fmt.Sprintf("Method \"%s\" not allowed.", c.Request().Method)
		default:
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(code)
			}
		}
	}

	if code >= http.StatusInternalServerError {
		logger.Error("server error",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = detail(c, code, message)
	}
	if err != nil {
		logger.Error("write error response failed", zap.Error(err))
	}
}
