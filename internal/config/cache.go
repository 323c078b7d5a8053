package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware. Caching is
// disabled when Enabled is false or no Redis client is available. Groups lists
// the first path segments whose GET responses may be cached; a successful write
// to a group purges its entries.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	Groups       map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseSet(envStr("CACHE_METHODS", "GET"), strings.ToUpper),
		Groups:       parseSet(envStr("CACHE_GROUPS", "halls,movies,showings"), strings.ToLower),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

func parseSet(s string, norm func(string) string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = norm(strings.TrimSpace(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
