// ABOUTME: Structured logging setup
// ABOUTME: Configures the default slog logger from the resolved settings
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Setup configures the process-wide slog default. Console output is a text
// handler on stderr at the given level; when logFile is set, JSON records go
// to the file instead. Returns the opened log file, if any, so callers can
// close it on shutdown.
func Setup(level, logFile string) (*os.File, error) {
	var slogLevel slog.Level
	switch level {
	case "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		slogLevel = slog.LevelError
	case "warn":
		slogLevel = slog.LevelWarn
	case "info":
		slogLevel = slog.LevelInfo
	case "debug":
		slogLevel = slog.LevelDebug
	default:
		return nil, errors.New("unexpected log level")
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(f, opts)))
		return f, nil
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	return nil, nil
}
