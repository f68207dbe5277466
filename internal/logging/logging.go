// Package logging builds the zerolog root logger for the client.
//
// Components never create their own root logger; they receive one and derive
// a child with Component so every line carries a "component" field.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "CHATLINK_LOG_LEVEL"

// Options controls root logger construction.
type Options struct {
	Level  string    // debug, info, warn, error, disabled
	Format string    // console or json
	Output io.Writer // defaults to os.Stderr
}

// New returns a root logger configured from opts.
// An unknown level falls back to info.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := opts.Level
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}
	lvl, _ := ParseLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	}

	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}

// Init builds the root logger and installs it as the package-level logger
// used by code that logs through zerolog/log.
func Init(opts Options) zerolog.Logger {
	logger := New(opts)
	log.Logger = logger
	return logger
}

// Component derives a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// ParseLevel maps a config string to a zerolog level.
// The second return is false when the string was not recognized.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
