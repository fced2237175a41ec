package audit

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const pushTimeout = 2 * time.Second

// queuedEvent is the wire format consumed by the audit worker.
type queuedEvent struct {
	Event     string         `json:"event"`
	AttemptID string         `json:"attempt_id"`
	Fields    map[string]any `json:"fields"`
	Timestamp int64          `json:"timestamp"`
}

// QueueSink buffers events in memory and pushes them onto a Redis list in
// the background. When the buffer is full new events are dropped.
type QueueSink struct {
	rdb     *redis.Client
	queue   string
	events  chan []byte
	dropped atomic.Int64
	log     zerolog.Logger
	now     func() time.Time
	done    chan struct{}
}

// NewQueueSink creates a QueueSink; call Start before recording.
func NewQueueSink(rdb *redis.Client, queue string, bufferSize int, log zerolog.Logger) *QueueSink {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &QueueSink{
		rdb:    rdb,
		queue:  queue,
		events: make(chan []byte, bufferSize),
		log:    log.With().Str("component", "audit_queue").Logger(),
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

func (s *QueueSink) Record(event string, fields map[string]any) {
	attemptID, _ := fields["attempt_id"].(string)
	raw, err := json.Marshal(queuedEvent{
		Event:     event,
		AttemptID: attemptID,
		Fields:    fields,
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("Discarding unencodable audit event")
		return
	}

	select {
	case s.events <- raw:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *QueueSink) Dropped() int64 {
	return s.dropped.Load()
}

// Start runs the pump until ctx is cancelled, then flushes what is buffered.
func (s *QueueSink) Start(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case raw := <-s.events:
			s.push(context.Background(), raw)
		}
	}
}

// Wait blocks until Start has returned and the buffer is flushed.
func (s *QueueSink) Wait() {
	<-s.done
}

func (s *QueueSink) push(ctx context.Context, raw []byte) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	if err := s.rdb.RPush(ctx, s.queue, raw).Err(); err != nil {
		s.log.Error().Err(err).Msg("Failed to queue audit event")
	}
}

func (s *QueueSink) flush() {
	pipe := s.rdb.Pipeline()
	n := 0
	for {
		select {
		case raw := <-s.events:
			pipe.RPush(context.Background(), s.queue, raw)
			n++
			continue
		default:
		}
		break
	}
	if n == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Int("count", n).Msg("Failed to flush audit events on shutdown")
		return
	}
	s.log.Info().Int("count", n).Msg("Flushed buffered audit events")
}
