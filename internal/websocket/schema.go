// Package websocket defines the attempt stream wire format.
package websocket

import "github.com/stemsi/exstem-attempts/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionSubmit Action = "submit"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// Request is a client message. Only answer uses the question fields.
type Request struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`
	TimeSpent  *int   `json:"time_spent,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventState  Event = "state"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
)

// SavedResponse acknowledges a recorded answer.
type SavedResponse struct {
	Event  Event         `json:"event"`
	Answer *model.Answer `json:"answer"`
}

// StateResponse carries the attempt's live timing after pause, resume or a
// state request.
type StateResponse struct {
	Event            Event               `json:"event"`
	Status           model.AttemptStatus `json:"status"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	Overdue          bool                `json:"overdue"`
}

// GradedResponse is sent once the attempt reaches a terminal state.
type GradedResponse struct {
	Event          Event               `json:"event"`
	Status         model.AttemptStatus `json:"status"`
	Score          string              `json:"score"`
	CorrectAnswers int                 `json:"correct_answers"`
	WrongAnswers   int                 `json:"wrong_answers"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
