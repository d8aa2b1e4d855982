// Package logging builds the zerolog logger used by the controller and its CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anggasct/lifeline/pkg/config"
)

const (
	EnvLogLevel  = "LIFELINE_LOG_LEVEL"
	EnvLogFormat = "LIFELINE_LOG_FORMAT"
)

// New builds a logger writing to stderr
func New(cfg config.Logging, app string) zerolog.Logger {
	return NewWithWriter(cfg, app, os.Stderr)
}

// NewWithWriter builds a logger from cfg with environment overrides applied. Format "json"
// writes JSON lines; anything else writes the console format.
func NewWithWriter(cfg config.Logging, app string, w io.Writer) zerolog.Logger {
	applyEnvOverrides(&cfg)

	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.ToLower(strings.TrimSpace(cfg.Format)) != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
}

func applyEnvOverrides(cfg *config.Logging) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Format = v
	}
}

// ParseLevel maps a level name to zerolog. Unknown names report false.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "disabled":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
