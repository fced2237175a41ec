package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRunning(userID, examID uuid.UUID, start time.Time, remaining int64) *model.Attempt {
	return &model.Attempt{
		ID:            uuid.New(),
		UserID:        userID,
		ExamID:        examID,
		Status:        model.AttemptStatusInProgress,
		StartTime:     &start,
		RemainingTime: remaining,
	}
}

func TestMemoryCreateAssignsAttemptNumbers(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAttemptRepository(func() time.Time { return t0 })
	user, exam := uuid.New(), uuid.New()

	first := newRunning(user, exam, t0, 600)
	second := newRunning(user, exam, t0, 600)
	other := newRunning(user, uuid.New(), t0, 600)

	require.NoError(t, repo.Create(ctx, first, 0))
	require.NoError(t, repo.Create(ctx, second, 0))
	require.NoError(t, repo.Create(ctx, other, 0))

	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, 2, second.AttemptNumber)
	assert.Equal(t, 1, other.AttemptNumber)
	assert.Equal(t, t0, first.CreatedAt)
}

func TestMemoryCreateEnforcesMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAttemptRepository(nil)
	user, exam := uuid.New(), uuid.New()

	require.NoError(t, repo.Create(ctx, newRunning(user, exam, t0, 60), 1))
	err := repo.Create(ctx, newRunning(user, exam, t0, 60), 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestMemoryUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAttemptRepository(nil)
	a := newRunning(uuid.New(), uuid.New(), t0, 600)
	require.NoError(t, repo.Create(ctx, a, 0))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, a.ID, func(a *model.Attempt) error {
		a.Status = model.AttemptStatusPaused
		a.RemainingTime = 1
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusInProgress, got.Status)
	assert.Equal(t, int64(600), got.RemainingTime)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAttemptRepository(nil)
	a := newRunning(uuid.New(), uuid.New(), t0, 600)
	require.NoError(t, repo.Create(ctx, a, 0))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	got.Status = model.AttemptStatusCompleted

	again, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusInProgress, again.Status)
}

func TestMemoryUnknownAttempt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAttemptRepository(nil)

	_, err := repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = repo.Update(ctx, uuid.New(), func(*model.Attempt) error { return nil })
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryListOverdue(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAttemptRepository(nil)
	user, exam := uuid.New(), uuid.New()
	now := t0.Add(650 * time.Second)

	overdue := newRunning(user, exam, t0, 600)
	fresh := newRunning(user, exam, now.Add(-10*time.Second), 600)
	paused := &model.Attempt{ID: uuid.New(), UserID: user, ExamID: exam, Status: model.AttemptStatusPaused}
	exact := newRunning(user, exam, t0.Add(50*time.Second), 600)

	for _, a := range []*model.Attempt{overdue, fresh, paused, exact} {
		require.NoError(t, repo.Create(ctx, a, 0))
	}

	ids, err := repo.ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{overdue.ID}, ids)
}

func TestMemoryListByUserOrdersByRecency(t *testing.T) {
	ctx := context.Background()
	now := t0
	repo := NewMemoryAttemptRepository(func() time.Time { return now })
	user, exam := uuid.New(), uuid.New()

	older := newRunning(user, exam, t0, 600)
	require.NoError(t, repo.Create(ctx, older, 0))
	now = t0.Add(time.Minute)
	newer := newRunning(user, exam, now, 600)
	require.NoError(t, repo.Create(ctx, newer, 0))
	require.NoError(t, repo.Create(ctx, newRunning(uuid.New(), exam, now, 600), 0))

	got, err := repo.ListByUser(ctx, user, []model.AttemptStatus{model.AttemptStatusInProgress})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)

	got, err = repo.ListByUser(ctx, user, []model.AttemptStatus{model.AttemptStatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, got)
}
