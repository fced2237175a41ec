package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// countingSource records how often the cache falls through to it.
type countingSource struct {
	*MemoryQuestionRepository
	calls int
}

func (s *countingSource) GetQuestion(ctx context.Context, id uuid.UUID) (*model.QuestionKey, error) {
	s.calls++
	return s.MemoryQuestionRepository.GetQuestion(ctx, id)
}

func TestCachedQuestionReadThrough(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	q := model.QuestionKey{
		ID:            uuid.New(),
		ExamID:        uuid.New(),
		CorrectAnswer: "B",
		ScoreWeight:   decimal.NewNullDecimal(decimal.NewFromInt(3)),
	}
	src := &countingSource{MemoryQuestionRepository: NewMemoryQuestionRepository(q)}
	repo := NewCachedQuestionRepository(rdb, src, 30*time.Minute, zerolog.Nop())

	got, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.CorrectAnswer)
	assert.Equal(t, 1, src.calls)

	key := config.CacheKey.QuestionKey(q.ID.String())
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 30*time.Minute, mr.TTL(key))

	got, err = repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, got.ScoreWeight.Decimal.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, q.ExamID, got.ExamID)
	assert.Equal(t, 1, src.calls, "second lookup is served from Redis")
}

func TestCachedQuestionInvalidate(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	q := model.QuestionKey{ID: uuid.New(), ExamID: uuid.New(), CorrectAnswer: "A"}
	src := &countingSource{MemoryQuestionRepository: NewMemoryQuestionRepository(q)}
	repo := NewCachedQuestionRepository(rdb, src, time.Hour, zerolog.Nop())

	_, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)

	q.CorrectAnswer = "C"
	src.Put(q)
	stale, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", stale.CorrectAnswer)

	require.NoError(t, repo.Invalidate(ctx, q.ID))
	fresh, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", fresh.CorrectAnswer)
	assert.Equal(t, 2, src.calls)
}

func TestCachedQuestionMissIsNotCached(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewCachedQuestionRepository(rdb, NewMemoryQuestionRepository(), time.Hour, zerolog.Nop())
	id := uuid.New()

	_, err := repo.GetQuestion(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, mr.Exists(config.CacheKey.QuestionKey(id.String())))
}

func TestCachedQuestionSurvivesRedisOutage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	q := model.QuestionKey{ID: uuid.New(), ExamID: uuid.New(), CorrectAnswer: "D"}
	repo := NewCachedQuestionRepository(rdb, NewMemoryQuestionRepository(q), time.Hour, zerolog.Nop())
	mr.Close()

	got, err := repo.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "D", got.CorrectAnswer)
}

func TestLeaseIsExclusive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	leases := NewLeaseRepository(rdb)

	ok, err := leases.Acquire(ctx, "sweep", "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = leases.Acquire(ctx, "sweep", "b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// A foreign token cannot release the lease.
	require.NoError(t, leases.Release(ctx, "sweep", "b"))
	assert.True(t, mr.Exists("sweep"))

	require.NoError(t, leases.Release(ctx, "sweep", "a"))
	assert.False(t, mr.Exists("sweep"))

	ok, err = leases.Acquire(ctx, "sweep", "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	leases := NewLeaseRepository(rdb)

	ok, err := leases.Acquire(ctx, "sweep", "a", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)
	ok, err = leases.Acquire(ctx, "sweep", "b", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
