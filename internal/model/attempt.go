package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AttemptStatus enumerates exam attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusPaused     AttemptStatus = "paused"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusExpired    AttemptStatus = "expired"
	AttemptStatusTerminated AttemptStatus = "terminated"
)

// IsTerminal reports whether no further transition is permitted.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusCompleted, AttemptStatusExpired, AttemptStatusTerminated:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptStatusInProgress, AttemptStatusPaused,
		AttemptStatusCompleted, AttemptStatusExpired, AttemptStatusTerminated:
		return true
	}
	return false
}

var transitions = map[AttemptStatus][]AttemptStatus{
	AttemptStatusInProgress: {AttemptStatusPaused, AttemptStatusCompleted, AttemptStatusExpired, AttemptStatusTerminated},
	AttemptStatusPaused:     {AttemptStatusInProgress, AttemptStatusTerminated},
}

// CanTransition reports whether an attempt may move from one status to another.
func CanTransition(from, to AttemptStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TerminationReasonCheating marks a termination caused by detected cheating.
const TerminationReasonCheating = "cheating"

// Attempt is one user's timed run through an exam.
type Attempt struct {
	ID               uuid.UUID           `json:"id"`
	UserID           uuid.UUID           `json:"user_id"`
	ExamID           uuid.UUID           `json:"exam_id"`
	AttemptNumber    int                 `json:"attempt_number"`
	Status           AttemptStatus       `json:"status"`
	StartTime        *time.Time          `json:"start_time"`
	EndTime          *time.Time          `json:"end_time"`
	RemainingTime    int64               `json:"remaining_time"`
	ConsumedMillis   int64               `json:"-"`
	Score            decimal.NullDecimal `json:"score"`
	CorrectAnswers   int                 `json:"correct_answers"`
	WrongAnswers     int                 `json:"wrong_answers"`
	Answers          []Answer            `json:"answers"`
	LastQuestionID   *uuid.UUID          `json:"last_question_id,omitempty"`
	CheatingDetected bool                `json:"cheating_detected"`
	DeviceInfo       string              `json:"device_info,omitempty"`
	IPAddress        string              `json:"ip_address,omitempty"`
	Metadata         map[string]any      `json:"metadata,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// FreezeClock stops a running clock at now. RemainingTime keeps the whole
// seconds left, rounded up, and ConsumedMillis the part of that last second
// already spent, so no running time is lost across pause cycles.
func (a *Attempt) FreezeClock(now time.Time) {
	if a.StartTime == nil {
		return
	}
	left := time.Duration(a.RemainingTime)*time.Second - a.elapsed(now)
	a.StartTime = nil
	if left <= 0 {
		a.RemainingTime, a.ConsumedMillis = 0, 0
		return
	}

	secs := int64((left + time.Second - 1) / time.Second)
	used := time.Duration(secs)*time.Second - left
	ms := int64((used + time.Millisecond - 1) / time.Millisecond)
	if ms >= 1000 {
		secs--
		ms -= 1000
	}
	a.RemainingTime, a.ConsumedMillis = secs, ms
}

// StartClock runs the clock from now, carrying over the part of the current
// second spent before the last freeze.
func (a *Attempt) StartClock(now time.Time) {
	start := now.Add(-time.Duration(a.ConsumedMillis) * time.Millisecond)
	a.StartTime = &start
	a.ConsumedMillis = 0
}

func (a *Attempt) elapsed(now time.Time) time.Duration {
	if a.StartTime == nil {
		return 0
	}
	d := now.Sub(*a.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedSeconds returns whole seconds spent in_progress since StartTime.
// Zero when the attempt is not running.
func (a *Attempt) ElapsedSeconds(now time.Time) int64 {
	return int64(a.elapsed(now) / time.Second)
}

// RemainingSeconds returns the live time budget: it counts down while
// in_progress and is frozen otherwise.
func (a *Attempt) RemainingSeconds(now time.Time) int64 {
	left := a.RemainingTime - a.ElapsedSeconds(now)
	if left < 0 {
		return 0
	}
	return left
}

// IsOverdue reports whether a running attempt has used up its time budget.
func (a *Attempt) IsOverdue(now time.Time) bool {
	return a.Status == AttemptStatusInProgress && a.ElapsedSeconds(now) > a.RemainingTime
}

// FindAnswer returns the index of the answer for questionID, or -1.
func (a *Attempt) FindAnswer(questionID uuid.UUID) int {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return i
		}
	}
	return -1
}

// UpsertAnswer stores ans, replacing a previous answer to the same question
// in place so the original submission order is kept.
func (a *Attempt) UpsertAnswer(ans Answer) {
	if i := a.FindAnswer(ans.QuestionID); i >= 0 {
		a.Answers[i] = ans
		return
	}
	a.Answers = append(a.Answers, ans)
}

// Clone returns a deep copy safe to mutate independently.
func (a *Attempt) Clone() *Attempt {
	c := *a
	if a.StartTime != nil {
		t := *a.StartTime
		c.StartTime = &t
	}
	if a.EndTime != nil {
		t := *a.EndTime
		c.EndTime = &t
	}
	if a.LastQuestionID != nil {
		id := *a.LastQuestionID
		c.LastQuestionID = &id
	}
	if a.Answers != nil {
		c.Answers = make([]Answer, len(a.Answers))
		for i, ans := range a.Answers {
			c.Answers[i] = ans.clone()
		}
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Answer is a submitted answer owned by an attempt.
type Answer struct {
	QuestionID     uuid.UUID           `json:"question_id"`
	SubmittedValue string              `json:"submitted_value"`
	IsCorrect      bool                `json:"is_correct"`
	TimeSpent      *int                `json:"time_spent,omitempty"`
	Score          decimal.Decimal     `json:"score"`
	MaxScore       decimal.NullDecimal `json:"max_score"`
	SubmittedAt    time.Time           `json:"submitted_at"`
}

func (a Answer) clone() Answer {
	if a.TimeSpent != nil {
		v := *a.TimeSpent
		a.TimeSpent = &v
	}
	return a
}

// AttemptState is an attempt plus its live timing view.
type AttemptState struct {
	Attempt          *Attempt `json:"attempt"`
	RemainingSeconds int64    `json:"remaining_seconds"`
	Overdue          bool     `json:"overdue"`
}

// ─── Requests ──────────────────────────────────────────────────────

// StartAttemptRequest is the payload for starting an attempt.
type StartAttemptRequest struct {
	UserID          string         `json:"user_id" binding:"required,uuid"`
	ExamID          string         `json:"exam_id" binding:"required,uuid"`
	DurationSeconds int64          `json:"duration_seconds" binding:"required,min=1"`
	MaxAttempts     int            `json:"max_attempts" binding:"omitempty,min=0"`
	DeviceInfo      string         `json:"device_info" binding:"omitempty,max=255"`
	Metadata        map[string]any `json:"metadata" binding:"omitempty"`
}

// ExtendTimeRequest is the payload for granting extra time.
type ExtendTimeRequest struct {
	ExtraSeconds int64 `json:"extra_seconds" binding:"required,min=1"`
}

// RecordAnswerRequest is the payload for answering one question.
type RecordAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Answer     string `json:"answer" binding:"max=2000"`
	TimeSpent  *int   `json:"time_spent" binding:"omitempty,min=0"`
}

// AutosaveRequest is the payload for saving a batch of answers at once.
type AutosaveRequest struct {
	Answers []RecordAnswerRequest `json:"answers" binding:"required,min=1,dive"`
}

// TerminateAttemptRequest is the payload for terminating an attempt.
type TerminateAttemptRequest struct {
	Reason string `json:"reason" binding:"required,notblank,max=100"`
}

// Attempt list filters.
const (
	AttemptListActive    = "active"
	AttemptListCompleted = "completed"
)

// ListAttemptsQuery selects which of a user's attempts to list.
type ListAttemptsQuery struct {
	State string `form:"state" binding:"omitempty,oneof=active completed"`
}
