package config

import (
	"os"
	"strconv"
	"time"
)

// CacheConfig defines settings for the Redis-backed diner restriction
// profile cache.  Diner restrictions are immutable for the booking core so
// entries only expire to bound memory.  When Enabled is false or no Redis
// client is configured the cache is bypassed.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: getenv("CACHE_ENABLED", "true") == "true",
		TTL:     parseDur(getenv("CACHE_TTL", "10m")),
		Prefix:  getenv("CACHE_PREFIX", "profile"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Minute
	}
	return d
}
