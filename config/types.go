package config

import (
	"log/slog"
	"strings"
)

const (
	LabelerTruncate  = "truncate"
	LabelerAnthropic = "anthropic"

	FormatText = "text"
	FormatJSON = "json"
)

var providers = map[string]bool{
	"hash":   true,
	"ollama": true,
	"openai": true,
}

var labelers = map[string]bool{
	LabelerTruncate:  true,
	LabelerAnthropic: true,
}

var formats = map[string]bool{
	FormatText: true,
	FormatJSON: true,
}

var levelValues = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a level name to its slog level, ignoring case.
func ParseLevel(s string) (slog.Level, bool) {
	l, ok := levelValues[strings.ToLower(s)]
	return l, ok
}
