// Package obsv wires up structured logging and Prometheus metrics shared
// across the question-evaluation pipeline.
package obsv

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger configures the process-wide slog default handler. env selects
// the handler: "production" emits JSON (for log aggregation), anything else
// emits the human-readable text handler.
func InitLogger(env, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(env, "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
