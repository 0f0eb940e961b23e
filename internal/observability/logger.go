package observability

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/couchcryptid/sb-lapse-etl/internal/config"
)

const appName = "sb-lapse"

// NewLogger builds the run logger. Logs go to w (stderr in production) so
// stdout stays reserved for the status report. Every record carries the app
// name and the run id.
func NewLogger(w io.Writer, cfg *config.Config, runID string) *slog.Logger {
	level := ParseLevel(cfg.LogLevel)

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.New(h).With("app", appName, "run_id", runID)
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
