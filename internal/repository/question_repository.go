package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// QuestionRepository reads grading keys from the questions table.
// Questions are owned elsewhere; this repository never writes them.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetQuestion retrieves the grading key of a single question.
func (r *QuestionRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*model.QuestionKey, error) {
	q := &model.QuestionKey{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, correct_option, score_value
		 FROM questions
		 WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&q.ID, &q.ExamID, &q.CorrectAnswer, &q.ScoreWeight)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}
