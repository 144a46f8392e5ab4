package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the slog.Logger the cache core components receive at
// construction; the library never logs through the process default logger.
// Level comes from LOG_LEVEL (debug, info, warn, error; default info).
// Production emits JSON for log shippers, anything else emits text.
func NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel()}
	if os.Getenv("GO_ENV") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// NopLogger returns a logger that discards everything. Tests pass it so
// components never need nil checks around log sites.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
