// Package scoring evaluates submitted answers and aggregates attempt scores.
package scoring

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// ScorePlaces is the number of decimal places kept on aggregated scores.
const ScorePlaces = 2

var hundred = decimal.NewFromInt(100)

// Engine grades answers by exact normalized match. It holds no state.
type Engine struct{}

// NewEngine creates a new Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Normalize trims surrounding whitespace from a submitted value.
func Normalize(v string) string {
	return strings.TrimSpace(v)
}

// Evaluate compares submitted against the question's correct answer,
// case-insensitively after trimming. No partial credit.
// A correct answer earns the question's weight; unweighted questions earn 0.
func (e *Engine) Evaluate(q *model.QuestionKey, submitted string) (bool, decimal.Decimal) {
	correct := strings.EqualFold(Normalize(submitted), Normalize(q.CorrectAnswer))
	if !correct || !q.ScoreWeight.Valid {
		return correct, decimal.Zero
	}
	return true, q.ScoreWeight.Decimal
}

// Grade builds the stored answer for a submission.
func (e *Engine) Grade(q *model.QuestionKey, submitted string) model.Answer {
	ok, score := e.Evaluate(q, submitted)
	return model.Answer{
		QuestionID:     q.ID,
		SubmittedValue: Normalize(submitted),
		IsCorrect:      ok,
		Score:          score,
		MaxScore:       q.ScoreWeight,
	}
}

// Counters derives correct and wrong counts from the full answer set.
func (e *Engine) Counters(answers []model.Answer) (correct, wrong int) {
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		} else {
			wrong++
		}
	}
	return correct, wrong
}

// Aggregate computes the attempt score. When any answered question carries a
// weight the score is the sum of per-answer scores; otherwise it is the
// percentage of correct answers.
func (e *Engine) Aggregate(answers []model.Answer) decimal.Decimal {
	if weighted(answers) {
		sum := decimal.Zero
		for _, a := range answers {
			sum = sum.Add(a.Score)
		}
		return sum.Round(ScorePlaces)
	}

	correct, _ := e.Counters(answers)
	total := len(answers)
	if total < 1 {
		total = 1
	}
	return decimal.NewFromInt(int64(correct)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(hundred).
		Round(ScorePlaces)
}

func weighted(answers []model.Answer) bool {
	for _, a := range answers {
		if a.MaxScore.Valid {
			return true
		}
	}
	return false
}
