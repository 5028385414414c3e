// Package logging builds the process logger from the log section of the
// configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/signalpilot/signalpilot/internal/config"
)

const timeFormat = "2006-01-02 15:04:05.000Z07:00"

// ParseLevel maps debug, info, warn and error to slog levels. Empty means
// info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a logger writing to w in the configured format. noColor
// disables tint's colors, for output that is not a terminal.
func New(w io.Writer, cfg config.LogConfig, noColor bool) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case config.LogFormatTint, "":
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: timeFormat,
			NoColor:    noColor,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
	case config.LogFormatText:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case config.LogFormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), nil
}
