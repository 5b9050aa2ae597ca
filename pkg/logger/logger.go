// Package logger configures the process-wide zerolog logger used by every
// component in catalyst-bot. Callers derive a component-scoped logger with
// logger.New(cfg).With().Str("component", "...").Logger() rather than
// referencing a package-level global.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the base logger is constructed.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Pretty bool   // human-readable console writer instead of JSON
}

// New builds the base zerolog.Logger for the process. Callers should tag
// a component-scoped child via .With().Str("component", name).Logger()
// rather than passing the base logger around directly.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}
