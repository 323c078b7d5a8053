// Package handler implements the HTTP endpoints. Handlers decode requests,
// pass the caller's principal to the services and map their errors to
// responses; they hold no state of their own.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/middleware"
	"github.com/moiseenkov/cinema/internal/model"
)

const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func principal(c echo.Context) model.Principal {
	return middleware.PrincipalFrom(c)
}

// pathID parses :id. Anything but a positive integer cannot name a record.
func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func notFound(c echo.Context) error {
	return detail(c, http.StatusNotFound, detailNotFound)
}
