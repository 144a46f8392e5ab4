package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the cache core.
type Config struct {
	Environment string

	// Remote backend.
	BackendURL string
	APIKey     string

	// Gateway retry policy. Timeout is per attempt, not per logical call;
	// worst case latency is RetryAttempts * (AttemptTimeout + RetryDelay).
	AttemptTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// Cache behavior.
	CacheDBPath    string // empty means in-memory only
	CacheTTL       time.Duration
	PageSize       int
	DetailCacheLen int
	DetailCacheTTL time.Duration

	// Favorite flush debounce window.
	FavoriteDebounce time.Duration

	// Connectivity probe cadence.
	ProbeInterval time.Duration
}

// Load loads configuration from environment variables. It attempts to load a
// .env file first unless running in production, where only the real
// environment is trusted.
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	if env != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found or couldn't be loaded: %v", err)
		}
	}

	cfg := &Config{
		Environment:      env,
		BackendURL:       os.Getenv("BACKEND_URL"),
		APIKey:           os.Getenv("BACKEND_API_KEY"),
		AttemptTimeout:   envDuration("ATTEMPT_TIMEOUT", 8*time.Second),
		RetryAttempts:    envInt("RETRY_ATTEMPTS", 3),
		RetryDelay:       envDuration("RETRY_DELAY", 2*time.Second),
		CacheDBPath:      os.Getenv("CACHE_DB_PATH"),
		CacheTTL:         envDuration("CACHE_TTL", time.Hour),
		PageSize:         envInt("PAGE_SIZE", 10),
		DetailCacheLen:   envInt("DETAIL_CACHE_LEN", 128),
		DetailCacheTTL:   envDuration("DETAIL_CACHE_TTL", 5*time.Minute),
		FavoriteDebounce: envDuration("FAVORITE_DEBOUNCE", 2*time.Second),
		ProbeInterval:    envDuration("PROBE_INTERVAL", 15*time.Second),
	}

	if cfg.BackendURL == "" {
		cfg.BackendURL = "http://localhost:54321"
	}
	if cfg.CacheDBPath == "" && env != "test" {
		cfg.CacheDBPath = "eventdeck.db"
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 10
	}

	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Warning: invalid duration for %s: %q, using %s", key, s, fallback)
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Warning: invalid integer for %s: %q, using %d", key, s, fallback)
		return fallback
	}
	return n
}
