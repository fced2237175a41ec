package model

import (
	"time"

	"github.com/google/uuid"
)

// Audit event names.
const (
	EventAttemptStarted    = "attempt.started"
	EventAttemptPaused     = "attempt.paused"
	EventAttemptResumed    = "attempt.resumed"
	EventAttemptExtended   = "attempt.time_extended"
	EventAnswerRecorded    = "attempt.answer_recorded"
	EventAnswersAutosaved  = "attempt.answers_autosaved"
	EventAttemptSubmitted  = "attempt.submitted"
	EventAttemptExpired    = "attempt.expired"
	EventAttemptTerminated = "attempt.terminated"
)

// AuditEvent is a persisted lifecycle event.
type AuditEvent struct {
	AttemptID  uuid.UUID      `json:"attempt_id"`
	Event      string         `json:"event"`
	Fields     map[string]any `json:"fields"`
	RecordedAt time.Time      `json:"recorded_at"`
}
