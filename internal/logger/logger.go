package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line.
const ServiceName = "exstem-attempts"

// Setup initializes the global zerolog level and returns the root logger.
//   - level: trace, debug, info, warn, error, fatal, panic (defaults to info)
//   - format: "pretty" for console output, anything else for JSON lines
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

// New builds a logger writing to w. Used by Setup and by binaries that log to stderr.
func New(w io.Writer, level, format string) zerolog.Logger {
	if strings.EqualFold(format, "pretty") {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Str("service", ServiceName).
		Logger()
}
