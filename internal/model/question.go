package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuestionKey is the read-only grading view of a question.
// A null ScoreWeight means the question carries no weight.
type QuestionKey struct {
	ID            uuid.UUID           `json:"id"`
	ExamID        uuid.UUID           `json:"exam_id"`
	CorrectAnswer string              `json:"correct_answer"`
	ScoreWeight   decimal.NullDecimal `json:"score_weight"`
}
