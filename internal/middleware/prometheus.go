package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/pkg/metrics"
)

// Prometheus records request counts by route template, status and caller
// role, and latency by route template. The scrape endpoint itself is not
// counted.
func Prometheus(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.Request(c.Request().Method, routeOf(c), strconv.Itoa(status), roleOf(PrincipalFrom(c)), time.Since(start))
			return err
		}
	}
}
