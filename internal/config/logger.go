package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// SlogLevel parses the configured log level, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds the application logger. "tint" is meant for local
// development; production runs use "json".
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	level := l.SlogLevel()

	var handler slog.Handler
	switch l.Format {
	case "tint":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: true})
	}
	return slog.New(handler)
}
