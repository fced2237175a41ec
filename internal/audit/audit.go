// Package audit records attempt lifecycle events without ever blocking or
// failing the caller.
package audit

import (
	"github.com/rs/zerolog"
)

// Sink receives lifecycle events. Implementations must not block.
type Sink interface {
	Record(event string, fields map[string]any)
}

// LogSink writes events to a zerolog logger at debug level.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(event string, fields map[string]any) {
	s.log.Debug().Fields(fields).Str("event", event).Msg("Attempt event")
}

// Multi fans one event out to several sinks.
type Multi []Sink

func (m Multi) Record(event string, fields map[string]any) {
	for _, s := range m {
		s.Record(event, fields)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(string, map[string]any) {}
