package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBookingConfig_Defaults(t *testing.T) {
	b := LoadBookingConfig()
	assert.Equal(t, "09:00", b.EarliestTime)
	assert.Equal(t, "23:00", b.LatestTime)
	assert.Equal(t, 30*time.Minute, b.ServiceBuffer())
	assert.Equal(t, 2*time.Hour, b.SweepLeadTime)
	assert.Equal(t, 15*time.Second, b.PaymentDelay)
	assert.Equal(t, time.UTC, b.Location)
}

func TestLoadBookingConfig_FromEnv(t *testing.T) {
	t.Setenv("CINEMA_EARLIEST_TIME", "10:30")
	t.Setenv("CINEMA_CLEANING_PERIOD", "20m")
	t.Setenv("CINEMA_COMMERCIAL_PERIOD", "5m")
	t.Setenv("CINEMA_TIMEZONE", "Europe/Berlin")
	t.Setenv("PAYMENT_DELAY", "1s")

	b := LoadBookingConfig()
	earliest, latest, err := b.Window()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Hour+30*time.Minute, earliest)
	assert.Equal(t, 23*time.Hour, latest)
	assert.Equal(t, 25*time.Minute, b.ServiceBuffer())
	assert.Equal(t, "Europe/Berlin", b.Location.String())
	assert.Equal(t, time.Second, b.PaymentDelay)
}

func TestWindow_Invalid(t *testing.T) {
	b := DefaultBooking()
	b.EarliestTime = "9am"
	_, _, err := b.Window()
	assert.Error(t, err)

	b = DefaultBooking()
	b.EarliestTime, b.LatestTime = "22:00", "08:00"
	_, _, err = b.Window()
	assert.Error(t, err)
}

func TestLoad_MemoryStorageSkipsDatabaseVars(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("PAYMENT_WORKERS", "0")

	cfg := Load()
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Empty(t, cfg.DBHost)
	assert.Equal(t, 1, cfg.PaymentWorkers)
	assert.Equal(t, "ticket.payment", cfg.PaymentQueue)
	assert.Equal(t, 10, cfg.PageSize)
}

func TestLoadRateLimitConfig_Normalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_GROUPS", "Halls")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.True(t, cfg.Groups["halls"])
	assert.False(t, cfg.Groups["movies"])
}
