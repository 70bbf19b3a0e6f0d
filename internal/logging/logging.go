// Package logging builds the slog.Logger every command and engine in confd
// shares: a text handler for terminals, a JSON handler for anything piped
// or daemonized, level selectable at startup.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format selects the handler a Logger is built with.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	Format    Format
	Level     string // "debug", "info", "warn", "error"; empty means info
	AddSource bool
	Writer    io.Writer
}

// New builds a *slog.Logger from opts. An unrecognized Format falls back to
// text; an unrecognized Level is an error.
func New(opts Options) (*slog.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	w := opts.Writer
	if w == nil {
		w = io.Discard
	}

	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	var h slog.Handler
	switch opts.Format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, hopts)
	default:
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unrecognized level %q", s)
	}
}

// Discard returns a Logger that drops everything, for tests and any code
// path that needs a non-nil logger with no observable side effect.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
