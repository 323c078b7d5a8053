package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/moiseenkov/cinema/internal/config"
)

func limitCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
}

func hitLimited(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/halls/", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func limitedEcho(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw)
	e.GET("/halls/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}

func TestTokenBucketRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	e := limitedEcho(NewTokenBucket(limitCfg(), rdb))

	first := hitLimited(e, "10.0.0.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, hitLimited(e, "10.0.0.1").Code)

	blocked := hitLimited(e, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Contains(t, blocked.Body.String(), "Request was throttled")

	assert.Equal(t, http.StatusOK, hitLimited(e, "10.0.0.2").Code, "buckets are per ip")
}

func TestTokenBucketRedisFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	e := limitedEcho(NewTokenBucket(limitCfg(), rdb))
	mr.Close()

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hitLimited(e, "10.0.0.1").Code)
	}
}

func TestTokenBucketLocalFallback(t *testing.T) {
	e := limitedEcho(NewTokenBucket(limitCfg(), nil))

	assert.Equal(t, http.StatusOK, hitLimited(e, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hitLimited(e, "10.0.0.1").Code)
	blocked := hitLimited(e, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, hitLimited(e, "10.0.0.3").Code)
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := limitCfg()
	cfg.Enabled = false
	e := limitedEcho(NewTokenBucket(cfg, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hitLimited(e, "10.0.0.1").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/halls/", nil)
	req.Header.Set(echo.HeaderXRealIP, "1.2.3.4")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/halls/")

	cfg := limitCfg()
	cfg.KeyStrategy = "ip_user_route"
	assert.Equal(t, "rl:ip:1.2.3.4:user:anon:route:GET /halls/", buildRateKey(cfg, c))

	c.Set(principalKey, principalFor(5))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:5", buildRateKey(cfg, c))
}
