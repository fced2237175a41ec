package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-attempts/internal/audit"
	"github.com/stemsi/exstem-attempts/internal/clock"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/scoring"
)

// AttemptStore persists attempts. Update must serialise writers per attempt
// and persist only when fn returns nil.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt, maxAttempts int) error
	Get(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	Update(ctx context.Context, id uuid.UUID, fn func(a *model.Attempt) error) (*model.Attempt, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID, statuses []model.AttemptStatus) ([]model.Attempt, error)
}

// QuestionLookup resolves grading keys.
type QuestionLookup interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*model.QuestionKey, error)
}

// AttemptOptions holds policy switches.
type AttemptOptions struct {
	// ExtendWhilePaused allows ExtendTime on paused attempts.
	ExtendWhilePaused bool
}

// StartAttemptInput describes a new attempt. DurationSeconds comes from the
// exam and is required. MaxAttempts of 0 means unlimited.
type StartAttemptInput struct {
	UserID          uuid.UUID
	ExamID          uuid.UUID
	DurationSeconds int64
	MaxAttempts     int
	DeviceInfo      string
	IPAddress       string
	Metadata        map[string]any
}

// RecordAnswerInput is one submitted answer.
type RecordAnswerInput struct {
	QuestionID uuid.UUID
	Value      string
	TimeSpent  *int
}

var (
	activeStatuses   = []model.AttemptStatus{model.AttemptStatusInProgress, model.AttemptStatusPaused}
	terminalStatuses = []model.AttemptStatus{model.AttemptStatusCompleted, model.AttemptStatusExpired, model.AttemptStatusTerminated}

	// errUnchanged aborts an update without writing.
	errUnchanged = errors.New("attempt unchanged")
)

// AttemptService drives the attempt lifecycle.
type AttemptService struct {
	store     AttemptStore
	questions QuestionLookup
	clock     clock.Clock
	engine    *scoring.Engine
	audit     audit.Sink
	opts      AttemptOptions
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	store AttemptStore,
	questions QuestionLookup,
	clk clock.Clock,
	engine *scoring.Engine,
	sink audit.Sink,
	opts AttemptOptions,
	log zerolog.Logger,
) *AttemptService {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &AttemptService{
		store:     store,
		questions: questions,
		clock:     clk,
		engine:    engine,
		audit:     sink,
		opts:      opts,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start creates a running attempt for the user.
func (s *AttemptService) Start(ctx context.Context, in StartAttemptInput) (*model.Attempt, error) {
	if in.UserID == uuid.Nil || in.ExamID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id and exam_id are required", model.ErrInvalidArgument)
	}
	if in.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", model.ErrInvalidArgument)
	}
	if in.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: max_attempts must not be negative", model.ErrInvalidArgument)
	}

	now := s.clock.Now()
	a := &model.Attempt{
		ID:            uuid.New(),
		UserID:        in.UserID,
		ExamID:        in.ExamID,
		Status:        model.AttemptStatusInProgress,
		StartTime:     &now,
		RemainingTime: in.DurationSeconds,
		Answers:       []model.Answer{},
		DeviceInfo:    in.DeviceInfo,
		IPAddress:     in.IPAddress,
		Metadata:      copyMetadata(in.Metadata),
	}

	if err := s.store.Create(ctx, a, in.MaxAttempts); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("user_id", a.UserID.String()).
		Str("exam_id", a.ExamID.String()).
		Int("attempt_number", a.AttemptNumber).
		Msg("Attempt started")
	s.record(model.EventAttemptStarted, a, map[string]any{
		"attempt_number": a.AttemptNumber,
		"duration":       in.DurationSeconds,
		"ip_address":     a.IPAddress,
	})
	return a, nil
}

// Pause freezes the remaining time budget.
func (s *AttemptService) Pause(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		if err := transition(a, model.AttemptStatusPaused); err != nil {
			return err
		}
		a.FreezeClock(s.clock.Now())
		a.Status = model.AttemptStatusPaused
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pause attempt: %w", err)
	}

	s.log.Info().Str("attempt_id", a.ID.String()).Int64("remaining_time", a.RemainingTime).Msg("Attempt paused")
	s.record(model.EventAttemptPaused, a, map[string]any{"remaining_time": a.RemainingTime})
	return a, nil
}

// Resume restarts the clock on a paused attempt.
func (s *AttemptService) Resume(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		if err := transition(a, model.AttemptStatusInProgress); err != nil {
			return err
		}
		a.StartClock(s.clock.Now())
		a.Status = model.AttemptStatusInProgress
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resume attempt: %w", err)
	}

	s.log.Info().Str("attempt_id", a.ID.String()).Int64("remaining_time", a.RemainingTime).Msg("Attempt resumed")
	s.record(model.EventAttemptResumed, a, map[string]any{"remaining_time": a.RemainingTime})
	return a, nil
}

// ExtendTime adds extraSeconds to the time budget without changing status.
func (s *AttemptService) ExtendTime(ctx context.Context, id uuid.UUID, extraSeconds int64) (*model.Attempt, error) {
	if extraSeconds <= 0 {
		return nil, fmt.Errorf("%w: extra time must be positive", model.ErrInvalidArgument)
	}

	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		switch {
		case a.Status == model.AttemptStatusInProgress:
		case a.Status == model.AttemptStatusPaused && s.opts.ExtendWhilePaused:
		default:
			return fmt.Errorf("%w: cannot extend a %s attempt", model.ErrInvalidState, a.Status)
		}
		a.RemainingTime += extraSeconds
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extend attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int64("extra_seconds", extraSeconds).
		Int64("remaining_time", a.RemainingTime).
		Msg("Attempt time extended")
	s.record(model.EventAttemptExtended, a, map[string]any{
		"extra_seconds":  extraSeconds,
		"remaining_time": a.RemainingTime,
	})
	return a, nil
}

// RecordAnswer grades and stores one answer. A resubmission replaces the
// previous answer to the same question.
func (s *AttemptService) RecordAnswer(ctx context.Context, id uuid.UUID, in RecordAnswerInput) (*model.Answer, error) {
	keys, err := s.lookupQuestions(ctx, []RecordAnswerInput{in})
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	var stored model.Answer
	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		answers, err := s.applyAnswers(a, keys, []RecordAnswerInput{in})
		if err != nil {
			return err
		}
		stored = answers[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	s.record(model.EventAnswerRecorded, a, map[string]any{
		"question_id": in.QuestionID.String(),
		"is_correct":  stored.IsCorrect,
	})
	return &stored, nil
}

// RecordAnswers stores a batch of answers atomically: either all are
// recorded or none.
func (s *AttemptService) RecordAnswers(ctx context.Context, id uuid.UUID, in []RecordAnswerInput) (*model.Attempt, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no answers to save", model.ErrInvalidArgument)
	}

	keys, err := s.lookupQuestions(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("autosave answers: %w", err)
	}

	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		_, err := s.applyAnswers(a, keys, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("autosave answers: %w", err)
	}

	s.record(model.EventAnswersAutosaved, a, map[string]any{"count": len(in)})
	return a, nil
}

// Submit completes a running attempt and computes its final score.
func (s *AttemptService) Submit(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		if err := transition(a, model.AttemptStatusCompleted); err != nil {
			return err
		}
		s.finish(a, model.AttemptStatusCompleted)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("score", a.Score.Decimal.String()).
		Int("correct", a.CorrectAnswers).
		Int("wrong", a.WrongAnswers).
		Msg("Attempt submitted")
	s.record(model.EventAttemptSubmitted, a, terminalFields(a))
	return a, nil
}

// ForceExpire ends an overdue attempt. An attempt that already reached a
// terminal state is returned as is.
func (s *AttemptService) ForceExpire(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	var unchanged *model.Attempt
	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		if a.Status.IsTerminal() {
			unchanged = a.Clone()
			return errUnchanged
		}
		if err := transition(a, model.AttemptStatusExpired); err != nil {
			return err
		}
		if !a.IsOverdue(s.clock.Now()) {
			return fmt.Errorf("%w: attempt still has time left", model.ErrInvalidState)
		}
		s.finish(a, model.AttemptStatusExpired)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return unchanged, nil
	}
	if err != nil {
		return nil, fmt.Errorf("expire attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("user_id", a.UserID.String()).
		Str("score", a.Score.Decimal.String()).
		Msg("Attempt expired")
	s.record(model.EventAttemptExpired, a, terminalFields(a))
	return a, nil
}

// Terminate ends an attempt administratively, e.g. when cheating is detected.
func (s *AttemptService) Terminate(ctx context.Context, id uuid.UUID, reason string) (*model.Attempt, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", model.ErrInvalidArgument)
	}

	a, err := s.store.Update(ctx, id, func(a *model.Attempt) error {
		if err := transition(a, model.AttemptStatusTerminated); err != nil {
			return err
		}
		s.finish(a, model.AttemptStatusTerminated)
		a.CheatingDetected = reason == model.TerminationReasonCheating
		if a.Metadata == nil {
			a.Metadata = map[string]any{}
		}
		a.Metadata["termination_reason"] = reason
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("terminate attempt: %w", err)
	}

	s.log.Warn().
		Str("attempt_id", a.ID.String()).
		Str("user_id", a.UserID.String()).
		Str("reason", reason).
		Msg("Attempt terminated")
	fields := terminalFields(a)
	fields["reason"] = reason
	s.record(model.EventAttemptTerminated, a, fields)
	return a, nil
}

// Get returns the stored attempt.
func (s *AttemptService) Get(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// State returns the attempt with its live remaining time.
func (s *AttemptService) State(ctx context.Context, id uuid.UUID) (*model.AttemptState, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(a), nil
}

// Snapshot pairs a with its timing as of now.
func (s *AttemptService) Snapshot(a *model.Attempt) *model.AttemptState {
	now := s.clock.Now()
	return &model.AttemptState{
		Attempt:          a,
		RemainingSeconds: a.RemainingSeconds(now),
		Overdue:          a.IsOverdue(now),
	}
}

// ListActive returns the user's running and paused attempts, newest first.
func (s *AttemptService) ListActive(ctx context.Context, userID uuid.UUID) ([]model.Attempt, error) {
	return s.listByUser(ctx, userID, activeStatuses)
}

// ListCompleted returns the user's finished attempts, most recently ended first.
func (s *AttemptService) ListCompleted(ctx context.Context, userID uuid.UUID) ([]model.Attempt, error) {
	return s.listByUser(ctx, userID, terminalStatuses)
}

// ListOverdue returns ids of attempts whose time budget ran out.
func (s *AttemptService) ListOverdue(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ids, err := s.store.ListOverdue(ctx, s.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue attempts: %w", err)
	}
	return ids, nil
}

func (s *AttemptService) listByUser(ctx context.Context, userID uuid.UUID, statuses []model.AttemptStatus) ([]model.Attempt, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", model.ErrInvalidArgument)
	}
	attempts, err := s.store.ListByUser(ctx, userID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

// lookupQuestions resolves every distinct question of a batch before any
// lock is taken.
func (s *AttemptService) lookupQuestions(ctx context.Context, in []RecordAnswerInput) (map[uuid.UUID]*model.QuestionKey, error) {
	keys := make(map[uuid.UUID]*model.QuestionKey, len(in))
	for _, ans := range in {
		if ans.QuestionID == uuid.Nil {
			return nil, fmt.Errorf("%w: question_id is required", model.ErrInvalidArgument)
		}
		if ans.TimeSpent != nil && *ans.TimeSpent < 0 {
			return nil, fmt.Errorf("%w: time_spent must not be negative", model.ErrInvalidArgument)
		}
		if _, ok := keys[ans.QuestionID]; ok {
			continue
		}
		q, err := s.questions.GetQuestion(ctx, ans.QuestionID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("%w: question %s", model.ErrNotFound, ans.QuestionID)
			}
			return nil, fmt.Errorf("lookup question %s: %w", ans.QuestionID, err)
		}
		keys[ans.QuestionID] = q
	}
	return keys, nil
}

// applyAnswers grades in against keys and stores the results on a.
func (s *AttemptService) applyAnswers(a *model.Attempt, keys map[uuid.UUID]*model.QuestionKey, in []RecordAnswerInput) ([]model.Answer, error) {
	if a.Status != model.AttemptStatusInProgress {
		return nil, fmt.Errorf("%w: attempt is %s", model.ErrInvalidState, a.Status)
	}
	now := s.clock.Now()
	if a.IsOverdue(now) {
		return nil, fmt.Errorf("%w: time is up", model.ErrInvalidState)
	}

	out := make([]model.Answer, 0, len(in))
	for _, ans := range in {
		q := keys[ans.QuestionID]
		if q.ExamID != a.ExamID {
			return nil, fmt.Errorf("%w: question %s is not part of this exam", model.ErrNotFound, q.ID)
		}
		graded := s.engine.Grade(q, ans.Value)
		graded.TimeSpent = ans.TimeSpent
		graded.SubmittedAt = now
		a.UpsertAnswer(graded)
		out = append(out, graded)
	}

	a.CorrectAnswers, a.WrongAnswers = s.engine.Counters(a.Answers)
	last := in[len(in)-1].QuestionID
	a.LastQuestionID = &last
	return out, nil
}

// finish applies the terminal effect shared by submit, expiry and
// termination.
func (s *AttemptService) finish(a *model.Attempt, status model.AttemptStatus) {
	now := s.clock.Now()
	a.FreezeClock(now)
	a.EndTime = &now
	a.Status = status
	a.CorrectAnswers, a.WrongAnswers = s.engine.Counters(a.Answers)
	a.Score = decimal.NewNullDecimal(s.engine.Aggregate(a.Answers))
}

func (s *AttemptService) record(event string, a *model.Attempt, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["attempt_id"] = a.ID.String()
	fields["user_id"] = a.UserID.String()
	fields["exam_id"] = a.ExamID.String()
	fields["status"] = string(a.Status)
	s.audit.Record(event, fields)
}

// transition fails with ErrInvalidState unless a may move to target.
func transition(a *model.Attempt, target model.AttemptStatus) error {
	if !model.CanTransition(a.Status, target) {
		return fmt.Errorf("%w: cannot move attempt from %s to %s", model.ErrInvalidState, a.Status, target)
	}
	return nil
}

func terminalFields(a *model.Attempt) map[string]any {
	return map[string]any{
		"score":           a.Score.Decimal.String(),
		"correct_answers": a.CorrectAnswers,
		"wrong_answers":   a.WrongAnswers,
		"remaining_time":  a.RemainingTime,
	}
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
