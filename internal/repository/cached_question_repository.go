package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// QuestionSource is where a cache miss is served from.
type QuestionSource interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*model.QuestionKey, error)
}

// CachedQuestionRepository serves grading keys from a Redis hash and falls
// back to the source on a miss, repopulating the hash with a TTL.
// Redis failures degrade to the source; they never fail a lookup.
type CachedQuestionRepository struct {
	rdb    *redis.Client
	source QuestionSource
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedQuestionRepository creates a new CachedQuestionRepository.
func NewCachedQuestionRepository(rdb *redis.Client, source QuestionSource, ttl time.Duration, log zerolog.Logger) *CachedQuestionRepository {
	return &CachedQuestionRepository{
		rdb:    rdb,
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "question_cache").Logger(),
	}
}

func (r *CachedQuestionRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*model.QuestionKey, error) {
	key := config.CacheKey.QuestionKey(id.String())

	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		r.log.Warn().Err(err).Str("question_id", id.String()).Msg("Question cache read failed, using database")
	} else if len(fields) > 0 {
		q, err := decodeQuestion(id, fields)
		if err == nil {
			return q, nil
		}
		r.log.Warn().Err(err).Str("question_id", id.String()).Msg("Discarding corrupt cached question")
	}

	q, err := r.source.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}

	// Self-heal the cache.
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, encodeQuestion(q))
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn().Err(err).Str("question_id", id.String()).Msg("Failed to cache question")
	}
	return q, nil
}

// Invalidate drops a cached question, e.g. after its key was edited.
func (r *CachedQuestionRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	return r.rdb.Del(ctx, config.CacheKey.QuestionKey(id.String())).Err()
}

func encodeQuestion(q *model.QuestionKey) map[string]any {
	weight := ""
	if q.ScoreWeight.Valid {
		weight = q.ScoreWeight.Decimal.String()
	}
	return map[string]any{
		"exam_id":        q.ExamID.String(),
		"correct_answer": q.CorrectAnswer,
		"score_weight":   weight,
	}
}

func decodeQuestion(id uuid.UUID, fields map[string]string) (*model.QuestionKey, error) {
	examID, err := uuid.Parse(fields["exam_id"])
	if err != nil {
		return nil, fmt.Errorf("parse exam_id: %w", err)
	}

	q := &model.QuestionKey{
		ID:            id,
		ExamID:        examID,
		CorrectAnswer: fields["correct_answer"],
	}
	if w := fields["score_weight"]; w != "" {
		d, err := decimal.NewFromString(w)
		if err != nil {
			return nil, fmt.Errorf("parse score_weight: %w", err)
		}
		q.ScoreWeight = decimal.NewNullDecimal(d)
	}
	return q, nil
}
