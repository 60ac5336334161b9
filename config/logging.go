package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the service logger from LOG_LEVEL (DEBUG, INFO, WARN, ERROR)
// and LOG_FORMAT (text or json). Defaults to INFO text on stdout.
func NewLogger(ctx context.Context, provider Provider) *slog.Logger {
	return newLogger(ctx, provider, os.Stdout)
}

func newLogger(ctx context.Context, provider Provider, w io.Writer) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	if lvl, err := provider.GetString(ctx, "LOG_LEVEL"); err == nil {
		switch strings.ToUpper(lvl) {
		case "DEBUG":
			level.Set(slog.LevelDebug)
		case "WARN":
			level.Set(slog.LevelWarn)
		case "ERROR":
			level.Set(slog.LevelError)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format, err := provider.GetString(ctx, "LOG_FORMAT"); err == nil && strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("env", string(provider.GetEnvironment()))
}
