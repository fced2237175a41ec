package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-attempts/internal/model"
)

const attemptColumns = `id, user_id, exam_id, attempt_number, status, start_time, end_time,
	remaining_time, consumed_ms, score, correct_answers, wrong_answers, last_question_id,
	cheating_detected, device_info, ip_address, metadata, created_at, updated_at`

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt and assigns its attempt number. Creation is
// serialised per (user, exam) with a transaction-scoped advisory lock.
// maxAttempts of 0 means unlimited.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt, maxAttempts int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`,
		a.UserID, a.ExamID,
	); err != nil {
		return fmt.Errorf("lock attempt slot: %w", err)
	}

	var count, lastNumber int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE deleted_at IS NULL), COALESCE(MAX(attempt_number), 0)
		 FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2`, a.UserID, a.ExamID,
	).Scan(&count, &lastNumber); err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}
	if maxAttempts > 0 && count >= maxAttempts {
		return fmt.Errorf("%w: maximum of %d attempts reached", model.ErrInvalidState, maxAttempts)
	}
	a.AttemptNumber = lastNumber + 1

	err = tx.QueryRow(ctx,
		`INSERT INTO exam_attempts (id, user_id, exam_id, attempt_number, status, start_time,
		     remaining_time, device_info, ip_address, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		a.ID, a.UserID, a.ExamID, a.AttemptNumber, a.Status, a.StartTime,
		a.RemainingTime, a.DeviceInfo, a.IPAddress, a.Metadata,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves an attempt with its answers in submission order.
func (r *AttemptRepository) Get(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, err
	}

	answers, err := r.loadAnswers(ctx, r.pool, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	a.Answers = answers[id]
	return a, nil
}

// Update locks the attempt row, applies fn to it and persists the result.
// Nothing is written when fn returns an error.
func (r *AttemptRepository) Update(ctx context.Context, id uuid.UUID, fn func(a *model.Attempt) error) (*model.Attempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE id = $1 AND deleted_at IS NULL
		 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	answers, err := r.loadAnswers(ctx, tx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	a.Answers = answers[id]

	before := a.Clone()
	if err := fn(a); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET status = $1, start_time = $2, end_time = $3, remaining_time = $4, consumed_ms = $12,
		     score = $5, correct_answers = $6, wrong_answers = $7, last_question_id = $8,
		     cheating_detected = $9, metadata = $10, updated_at = NOW()
		 WHERE id = $11
		 RETURNING updated_at`,
		a.Status, a.StartTime, a.EndTime, a.RemainingTime, a.Score,
		a.CorrectAnswers, a.WrongAnswers, a.LastQuestionID,
		a.CheatingDetected, a.Metadata, a.ID, a.ConsumedMillis,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	if err := upsertAnswers(ctx, tx, a.ID, before.Answers, a.Answers); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return a, nil
}

// ListOverdue returns ids of running attempts whose time budget is used up
// at now, oldest first.
func (r *AttemptRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exam_attempts
		 WHERE status = $1 AND deleted_at IS NULL
		   AND start_time + make_interval(secs => remaining_time + 1) <= $2
		 ORDER BY start_time
		 LIMIT $3`,
		model.AttemptStatusInProgress, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ListByUser retrieves a user's attempts in the given statuses, most recent
// first (terminal attempts by end time, others by creation time).
func (r *AttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, statuses []model.AttemptStatus) ([]model.Attempt, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE user_id = $1 AND status = ANY($2) AND deleted_at IS NULL
		 ORDER BY COALESCE(end_time, created_at) DESC`, userID, names,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	var ids []uuid.UUID
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return attempts, nil
	}

	answers, err := r.loadAnswers(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		attempts[i].Answers = answers[attempts[i].ID]
	}
	return attempts, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *AttemptRepository) loadAnswers(ctx context.Context, q querier, attemptIDs []uuid.UUID) (map[uuid.UUID][]model.Answer, error) {
	rows, err := q.Query(ctx,
		`SELECT attempt_id, question_id, submitted_value, is_correct, time_spent, score, max_score, submitted_at
		 FROM exam_attempt_answers
		 WHERE attempt_id = ANY($1)
		 ORDER BY attempt_id, position`, attemptIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.Answer, len(attemptIDs))
	for rows.Next() {
		var attemptID uuid.UUID
		var ans model.Answer
		if err := rows.Scan(&attemptID, &ans.QuestionID, &ans.SubmittedValue, &ans.IsCorrect,
			&ans.TimeSpent, &ans.Score, &ans.MaxScore, &ans.SubmittedAt); err != nil {
			return nil, err
		}
		out[attemptID] = append(out[attemptID], ans)
	}
	return out, rows.Err()
}

// upsertAnswers writes answers that are new or changed compared to before.
// Positions follow slice order, so a resubmitted answer keeps its slot.
func upsertAnswers(ctx context.Context, tx pgx.Tx, attemptID uuid.UUID, before, after []model.Answer) error {
	batch := &pgx.Batch{}
	for i, ans := range after {
		if i < len(before) && !answerChanged(before[i], ans) {
			continue
		}
		batch.Queue(
			`INSERT INTO exam_attempt_answers
			     (attempt_id, question_id, position, submitted_value, is_correct, time_spent, score, max_score, submitted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET submitted_value = EXCLUDED.submitted_value,
			     is_correct = EXCLUDED.is_correct,
			     time_spent = EXCLUDED.time_spent,
			     score = EXCLUDED.score,
			     max_score = EXCLUDED.max_score,
			     submitted_at = EXCLUDED.submitted_at`,
			attemptID, ans.QuestionID, i, ans.SubmittedValue, ans.IsCorrect,
			ans.TimeSpent, ans.Score, ans.MaxScore, ans.SubmittedAt,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert answers: %w", err)
	}
	return nil
}

func answerChanged(a, b model.Answer) bool {
	return a.QuestionID != b.QuestionID ||
		a.SubmittedValue != b.SubmittedValue ||
		a.IsCorrect != b.IsCorrect ||
		!a.SubmittedAt.Equal(b.SubmittedAt) ||
		!a.Score.Equal(b.Score) ||
		!sameMaxScore(a.MaxScore, b.MaxScore) ||
		!sameTimeSpent(a.TimeSpent, b.TimeSpent)
}

func sameMaxScore(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func sameTimeSpent(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.AttemptNumber, &a.Status, &a.StartTime, &a.EndTime,
		&a.RemainingTime, &a.ConsumedMillis, &a.Score, &a.CorrectAnswers, &a.WrongAnswers, &a.LastQuestionID,
		&a.CheatingDetected, &a.DeviceInfo, &a.IPAddress, &a.Metadata, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	return a, nil
}
