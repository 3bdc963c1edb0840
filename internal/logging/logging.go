// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup creates a text-mode *slog.Logger writing to stderr, sets it as the
// default, and returns it. Accepted levels are "debug", "info", "warn" and
// "error" (case-insensitive); anything else falls back to info.
func Setup(level string) *slog.Logger {
	return SetupWriter(level, os.Stderr)
}

// SetupWriter is Setup with an explicit output, used by tests to capture
// log lines.
func SetupWriter(level string, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
