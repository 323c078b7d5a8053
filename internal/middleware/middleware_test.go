package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/pkg/metrics"
)

func TestSetupMiddleware(t *testing.T) {
	e := echo.New()
	SetupMiddleware(e)
	e.GET("/halls/", func(c echo.Context) error { return c.String(http.StatusOK, "halls") })
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/halls", "/halls/", "/healthz"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID), path)
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(RequestLoggerWith(zap.New(core)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Test-Admin") != "" {
				c.Set(principalKey, model.Principal{ID: 7, IsAdmin: true})
			}
			return next(c)
		}
	})
	e.GET("/halls/:id/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/bad", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "bad") })
	e.GET("/denied", func(c echo.Context) error { return c.String(http.StatusForbidden, "no") })
	e.GET("/boom", func(c echo.Context) error { return c.String(http.StatusInternalServerError, "boom") })

	tests := []struct {
		path  string
		admin bool
		level zapcore.Level
		msg   string
	}{
		{"/halls/3/", true, zapcore.InfoLevel, "request completed"},
		{"/bad", false, zapcore.WarnLevel, "client error"},
		{"/denied", false, zapcore.InfoLevel, "request refused"},
		{"/boom", false, zapcore.ErrorLevel, "server error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			logs.TakeAll()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.admin {
				req.Header.Set("X-Test-Admin", "1")
			}
			e.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.msg, entries[0].Message)
			fields := entries[0].ContextMap()
			if tt.admin {
				assert.Equal(t, "/halls/:id/", fields["route"])
				assert.Equal(t, "halls", fields["resource"])
				assert.Equal(t, "admin", fields["role"])
				assert.EqualValues(t, 7, fields["user_id"])
			} else {
				assert.Equal(t, "anonymous", fields["role"])
				assert.NotContains(t, fields, "user_id")
			}
		})
	}
}

func TestPrometheus(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	e := echo.New()
	e.Use(Prometheus(m))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) != "" {
				c.Set(principalKey, model.Principal{ID: 4})
			}
			return next(c)
		}
	})
	e.GET("/halls/:id/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", func(c echo.Context) error { return c.String(http.StatusOK, "# metrics") })

	for i := 0; i < 3; i++ {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/halls/1/", nil))
	}
	req := httptest.NewRequest(http.MethodGet, "/halls/2/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer x")
	e.ServeHTTP(httptest.NewRecorder(), req)
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/halls/:id/", "200", "anonymous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/halls/:id/", "200", "user")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequestsTotal), "scrapes are not counted")
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}
