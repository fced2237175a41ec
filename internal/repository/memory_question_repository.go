package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// MemoryQuestionRepository serves grading keys from a map.
type MemoryQuestionRepository struct {
	mu        sync.RWMutex
	questions map[uuid.UUID]model.QuestionKey
}

// NewMemoryQuestionRepository creates a store seeded with qs.
func NewMemoryQuestionRepository(qs ...model.QuestionKey) *MemoryQuestionRepository {
	r := &MemoryQuestionRepository{questions: make(map[uuid.UUID]model.QuestionKey, len(qs))}
	for _, q := range qs {
		r.questions[q.ID] = q
	}
	return r
}

// Put adds or replaces a question.
func (r *MemoryQuestionRepository) Put(q model.QuestionKey) {
	r.mu.Lock()
	r.questions[q.ID] = q
	r.mu.Unlock()
}

func (r *MemoryQuestionRepository) GetQuestion(_ context.Context, id uuid.UUID) (*model.QuestionKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &q, nil
}
