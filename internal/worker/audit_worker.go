package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
)

const (
	AuditBatchSize    = 100
	AuditBatchTimeout = 2 * time.Second
	AuditPollTimeout  = 1 * time.Second // Redis requires >= 1s
)

// AuditWorker drains the attempt event queue into exam_attempt_events.
type AuditWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAuditWorker creates a new AuditWorker.
func NewAuditWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "audit_worker").Logger(),
	}
}

type auditPayload struct {
	Event     string         `json:"event"`
	AttemptID string         `json:"attempt_id"`
	Fields    map[string]any `json:"fields"`
	Timestamp int64          `json:"timestamp"`
}

func (w *AuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AuditWorker started")

	buffer := make([]*auditPayload, 0, AuditBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= AuditBatchSize || time.Since(lastFlush) >= AuditBatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, AuditPollTimeout, config.WorkerKey.PersistAttemptEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		p, err := decodeAuditPayload([]byte(result[1]))
		if err != nil {
			// Malformed entries can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed audit event")
			continue
		}
		buffer = append(buffer, p)
	}
}

// flushSafe tries a bulk copy, then row-by-row inserts, then requeues.
func (w *AuditWorker) flushSafe(ctx context.Context, batch []*auditPayload) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *AuditWorker) bulkInsert(ctx context.Context, batch []*auditPayload) error {
	rows := make([][]any, 0, len(batch))
	for _, p := range batch {
		ev, err := p.toEvent()
		if err != nil {
			return err
		}
		rows = append(rows, []any{ev.AttemptID, ev.Event, ev.Fields, ev.RecordedAt})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_attempt_events"},
		[]string{"attempt_id", "event", "fields", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *AuditWorker) fallbackInsert(ctx context.Context, batch []*auditPayload) {
	var requeue []*auditPayload

	for _, p := range batch {
		ev, err := p.toEvent()
		if err != nil {
			w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping audit event with invalid attempt id")
			continue
		}

		if _, err := w.pool.Exec(ctx,
			`INSERT INTO exam_attempt_events (attempt_id, event, fields, recorded_at)
			 VALUES ($1, $2, $3, $4)`,
			ev.AttemptID, ev.Event, ev.Fields, ev.RecordedAt,
		); err != nil {
			w.log.Error().Err(err).Str("attempt_id", p.AttemptID).Msg("Insert failed, requeueing")
			requeue = append(requeue, p)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *AuditWorker) requeue(ctx context.Context, items []*auditPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistAttemptEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue audit events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed audit events")
	// Back off so a database outage does not turn into a hot loop.
	time.Sleep(2 * time.Second)
}

func (w *AuditWorker) shutdown(buffer []*auditPayload) {
	w.log.Info().Msg("AuditWorker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
}

func decodeAuditPayload(raw []byte) (*auditPayload, error) {
	var p auditPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if p.Event == "" {
		return nil, errors.New("missing event name")
	}
	return &p, nil
}

func (p *auditPayload) toEvent() (*model.AuditEvent, error) {
	id, err := uuid.Parse(p.AttemptID)
	if err != nil {
		return nil, err
	}
	fields := p.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return &model.AuditEvent{
		AttemptID:  id,
		Event:      p.Event,
		Fields:     fields,
		RecordedAt: time.Unix(p.Timestamp, 0).UTC(),
	}, nil
}
