// Package logging configures the structured logger shared across the
// manager, persistence backends, and command-line tools.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a slog.Logger from environment variables, the same
// env-var-driven configuration style used throughout internal/config.
//
//	JCRCORE_LOG_FORMAT: text|json (default text)
//	JCRCORE_LOG_LEVEL: debug|info|warn|error (default info)
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	var handler slog.Handler
	if strings.EqualFold(os.Getenv("JCRCORE_LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("JCRCORE_LOG_LEVEL")) {
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
