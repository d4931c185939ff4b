package config

import (
	"io"
	"log/slog"
)

// NewLogger returns a text logger for the given verbosity: 0 logs errors only, 1 adds warnings,
// 2 adds info, and 3 or more adds debug records, including packet dumps. Timestamps are only
// written in debug mode.
func NewLogger(verbosity int, w io.Writer) *slog.Logger {
	level := slog.LevelError
	switch {
	case verbosity >= 3:
		level = slog.LevelDebug
	case verbosity == 2:
		level = slog.LevelInfo
	case verbosity == 1:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if level > slog.LevelDebug {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
