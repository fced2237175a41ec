package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stretchr/testify/assert"
)

func weightedQuestion(answer string, weight int64) *model.QuestionKey {
	return &model.QuestionKey{
		ID:            uuid.New(),
		CorrectAnswer: answer,
		ScoreWeight:   decimal.NewNullDecimal(decimal.NewFromInt(weight)),
	}
}

func TestEvaluate(t *testing.T) {
	e := NewEngine()
	q := weightedQuestion("  Paris ", 5)

	tests := []struct {
		name      string
		submitted string
		correct   bool
		score     string
	}{
		{"exact", "Paris", true, "5"},
		{"case and whitespace", "\tpARIS  ", true, "5"},
		{"wrong", "Lyon", false, "0"},
		{"empty is a wrong answer", "", false, "0"},
		{"no numeric tolerance", "Paris.", false, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, score := e.Evaluate(q, tt.submitted)
			assert.Equal(t, tt.correct, ok)
			assert.Equal(t, tt.score, score.String())
		})
	}
}

func TestEvaluateUnweighted(t *testing.T) {
	e := NewEngine()
	q := &model.QuestionKey{ID: uuid.New(), CorrectAnswer: "b"}

	ok, score := e.Evaluate(q, "B")
	assert.True(t, ok)
	assert.True(t, score.IsZero())
}

func TestGradeTrimsValue(t *testing.T) {
	e := NewEngine()
	q := weightedQuestion("42", 2)

	ans := e.Grade(q, " 42 ")
	assert.Equal(t, "42", ans.SubmittedValue)
	assert.Equal(t, q.ID, ans.QuestionID)
	assert.True(t, ans.IsCorrect)
	assert.True(t, ans.MaxScore.Valid)
}

func TestAggregateWeighted(t *testing.T) {
	e := NewEngine()
	q1 := weightedQuestion("a", 5)
	q2 := weightedQuestion("b", 10)

	answers := []model.Answer{e.Grade(q1, "a"), e.Grade(q2, "x")}

	assert.Equal(t, "5", e.Aggregate(answers).String())
	correct, wrong := e.Counters(answers)
	assert.Equal(t, 1, correct)
	assert.Equal(t, 1, wrong)
}

func TestAggregatePercentage(t *testing.T) {
	e := NewEngine()
	q := &model.QuestionKey{ID: uuid.New(), CorrectAnswer: "a"}

	answers := []model.Answer{
		e.Grade(q, "a"),
		e.Grade(&model.QuestionKey{ID: uuid.New(), CorrectAnswer: "b"}, "c"),
		e.Grade(&model.QuestionKey{ID: uuid.New(), CorrectAnswer: "d"}, "e"),
	}

	assert.Equal(t, "33.33", e.Aggregate(answers).String())
}

func TestAggregateEmpty(t *testing.T) {
	assert.True(t, NewEngine().Aggregate(nil).IsZero())
}
