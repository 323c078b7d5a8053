package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestMetricsBasicAuth(t *testing.T) {
	tests := []struct {
		name           string
		user, password string
		basic          []string
		want           int
	}{
		{name: "not configured", want: http.StatusOK},
		{name: "only user configured", user: "prom", want: http.StatusOK},
		{name: "valid credentials", user: "prom", password: "secret", basic: []string{"prom", "secret"}, want: http.StatusOK},
		{name: "wrong credentials", user: "prom", password: "secret", basic: []string{"prom", "nope"}, want: http.StatusUnauthorized},
		{name: "no header", user: "prom", password: "secret", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/metrics", func(c echo.Context) error {
				return c.String(http.StatusOK, "metrics")
			}, MetricsBasicAuth(tt.user, tt.password))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.basic != nil {
				req.SetBasicAuth(tt.basic[0], tt.basic[1])
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
