// Package sysutil holds process bootstrap helpers: global logger setup and
// small environment lookups used before configuration is loaded.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// ParseLevel maps a case-insensitive level name to a zerolog level. Unknown
// or empty names are info.
func ParseLevel(lvl string) zerolog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(lvl))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// SetLogLevel sets the global zerolog level from a name.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// LogOptions configures the process logger.
type LogOptions struct {
	Level   string
	Pretty  bool // human-readable console output instead of JSON
	Service string
	Version string
	Out     io.Writer // defaults to stderr
}

// SetupLogger configures the global zerolog logger and returns it. Every
// event carries the service name and version.
func SetupLogger(o LogOptions) zerolog.Logger {
	SetLogLevel(o.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if o.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	lg := zerolog.New(out).With().
		Timestamp().
		Str("service", FirstNonEmpty(o.Service, "go-booking-backend")).
		Str("version", FirstNonEmpty(o.Version, "dev")).
		Logger()
	log.Logger = lg
	zerolog.DefaultContextLogger = &log.Logger
	return lg
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
