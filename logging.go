package grove

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a structured logger writing to w. Level is one of debug,
// info, warn or error; format is text or json. Unknown values fall back to
// info and text.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, ok := parseLevel(level)
	if !ok {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func validFormat(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text", "json":
		return true
	default:
		return false
	}
}
