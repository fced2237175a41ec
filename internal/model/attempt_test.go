package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AttemptStatus
		want     bool
	}{
		{AttemptStatusInProgress, AttemptStatusPaused, true},
		{AttemptStatusInProgress, AttemptStatusCompleted, true},
		{AttemptStatusInProgress, AttemptStatusExpired, true},
		{AttemptStatusPaused, AttemptStatusInProgress, true},
		{AttemptStatusPaused, AttemptStatusCompleted, false},
		{AttemptStatusPaused, AttemptStatusExpired, false},
		{AttemptStatusPaused, AttemptStatusTerminated, true},
		{AttemptStatusCompleted, AttemptStatusInProgress, false},
		{AttemptStatusExpired, AttemptStatusPaused, false},
		{AttemptStatusTerminated, AttemptStatusTerminated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRemainingSeconds(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	a := &Attempt{Status: AttemptStatusInProgress, StartTime: &start, RemainingTime: 600}

	assert.Equal(t, int64(600), a.RemainingSeconds(start))
	assert.Equal(t, int64(100), a.RemainingSeconds(start.Add(500*time.Second+900*time.Millisecond)))
	assert.Equal(t, int64(0), a.RemainingSeconds(start.Add(700*time.Second)))
	assert.False(t, a.IsOverdue(start.Add(600*time.Second)))
	assert.True(t, a.IsOverdue(start.Add(601*time.Second)))

	a.StartTime = nil
	a.Status = AttemptStatusPaused
	assert.Equal(t, int64(600), a.RemainingSeconds(start.Add(time.Hour)))
	assert.False(t, a.IsOverdue(start.Add(time.Hour)))
}

func TestFreezeClockCarriesPartialSecond(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	a := &Attempt{StartTime: &start, RemainingTime: 600}

	now := start.Add(1500 * time.Millisecond)
	a.FreezeClock(now)
	assert.Nil(t, a.StartTime)
	assert.Equal(t, int64(599), a.RemainingTime)
	assert.Equal(t, int64(500), a.ConsumedMillis)

	a.StartClock(now)
	assert.Equal(t, now.Add(-500*time.Millisecond), *a.StartTime)
	assert.Equal(t, int64(0), a.ConsumedMillis)

	a.FreezeClock(now.Add(500 * time.Millisecond))
	assert.Equal(t, int64(598), a.RemainingTime)
	assert.Equal(t, int64(0), a.ConsumedMillis)
}

func TestFreezeClockClampsAtZero(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	a := &Attempt{StartTime: &start, RemainingTime: 10, ConsumedMillis: 0}

	a.FreezeClock(start.Add(11*time.Second + 300*time.Millisecond))
	assert.Equal(t, int64(0), a.RemainingTime)
	assert.Equal(t, int64(0), a.ConsumedMillis)
}

func TestUpsertAnswerKeepsPosition(t *testing.T) {
	q1, q2 := uuid.New(), uuid.New()
	a := &Attempt{}
	a.UpsertAnswer(Answer{QuestionID: q1, SubmittedValue: "a"})
	a.UpsertAnswer(Answer{QuestionID: q2, SubmittedValue: "b"})
	a.UpsertAnswer(Answer{QuestionID: q1, SubmittedValue: "c"})

	assert.Len(t, a.Answers, 2)
	assert.Equal(t, q1, a.Answers[0].QuestionID)
	assert.Equal(t, "c", a.Answers[0].SubmittedValue)
}

func TestCloneIsDeep(t *testing.T) {
	start := time.Now()
	spent := 4
	a := &Attempt{
		StartTime: &start,
		Answers:   []Answer{{QuestionID: uuid.New(), TimeSpent: &spent, Score: decimal.NewFromInt(1)}},
		Metadata:  map[string]any{"k": "v"},
	}

	c := a.Clone()
	*c.StartTime = start.Add(time.Hour)
	*c.Answers[0].TimeSpent = 9
	c.Metadata["k"] = "changed"

	assert.Equal(t, start, *a.StartTime)
	assert.Equal(t, 4, *a.Answers[0].TimeSpent)
	assert.Equal(t, "v", a.Metadata["k"])
}
