package config

import (
	"io"
	"log/slog"
)

// SlogLevel returns the configured slog level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	level, ok := ParseLevel(l.Level)
	if !ok {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds a text or JSON slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
