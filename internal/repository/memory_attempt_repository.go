package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// MemoryAttemptRepository keeps attempts in process memory. Every call
// copies attempts in and out, so callers never share state with the store.
type MemoryAttemptRepository struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
	now      func() time.Time
}

// NewMemoryAttemptRepository creates an empty in-memory store.
// now stamps created_at/updated_at; nil means time.Now.
func NewMemoryAttemptRepository(now func() time.Time) *MemoryAttemptRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryAttemptRepository{
		attempts: make(map[uuid.UUID]*model.Attempt),
		now:      now,
	}
}

func (r *MemoryAttemptRepository) Create(_ context.Context, a *model.Attempt, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attempts[a.ID]; ok {
		return fmt.Errorf("attempt %s already exists", a.ID)
	}

	count, last := 0, 0
	for _, existing := range r.attempts {
		if existing.UserID != a.UserID || existing.ExamID != a.ExamID {
			continue
		}
		count++
		if existing.AttemptNumber > last {
			last = existing.AttemptNumber
		}
	}
	if maxAttempts > 0 && count >= maxAttempts {
		return fmt.Errorf("%w: maximum of %d attempts reached", model.ErrInvalidState, maxAttempts)
	}

	now := r.now()
	a.AttemptNumber = last + 1
	a.CreatedAt = now
	a.UpdatedAt = now
	r.attempts[a.ID] = a.Clone()
	return nil
}

func (r *MemoryAttemptRepository) Get(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return a.Clone(), nil
}

// Update applies fn to a private copy and swaps it in only on success.
func (r *MemoryAttemptRepository) Update(_ context.Context, id uuid.UUID, fn func(a *model.Attempt) error) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.attempts[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	r.attempts[id] = next
	return next.Clone(), nil
}

func (r *MemoryAttemptRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var overdue []*model.Attempt
	for _, a := range r.attempts {
		if a.IsOverdue(now) {
			overdue = append(overdue, a)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].StartTime.Before(*overdue[j].StartTime)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}

	ids := make([]uuid.UUID, len(overdue))
	for i, a := range overdue {
		ids[i] = a.ID
	}
	return ids, nil
}

func (r *MemoryAttemptRepository) ListByUser(_ context.Context, userID uuid.UUID, statuses []model.AttemptStatus) ([]model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[model.AttemptStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []model.Attempt
	for _, a := range r.attempts {
		if a.UserID == userID && wanted[a.Status] {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return recency(&out[i]).After(recency(&out[j]))
	})
	return out, nil
}

func recency(a *model.Attempt) time.Time {
	if a.EndTime != nil {
		return *a.EndTime
	}
	return a.CreatedAt
}
