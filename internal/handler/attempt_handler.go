package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
	"github.com/stemsi/exstem-attempts/internal/validator"
)

// AttemptHandler exposes the attempt lifecycle over HTTP.
type AttemptHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/attempts
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), service.StartAttemptInput{
		UserID:          uuid.MustParse(req.UserID),
		ExamID:          uuid.MustParse(req.ExamID),
		DurationSeconds: req.DurationSeconds,
		MaxAttempts:     req.MaxAttempts,
		DeviceInfo:      req.DeviceInfo,
		IPAddress:       c.ClientIP(),
		Metadata:        req.Metadata,
	})
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, attempt)
}

// GetAttempt godoc
// GET /api/v1/attempts/:id
// Returns the attempt with its live remaining time.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), id)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// PauseAttempt godoc
// POST /api/v1/attempts/:id/pause
func (h *AttemptHandler) PauseAttempt(c *gin.Context) {
	h.transition(c, h.attemptService.Pause)
}

// ResumeAttempt godoc
// POST /api/v1/attempts/:id/resume
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	h.transition(c, h.attemptService.Resume)
}

// SubmitAttempt godoc
// POST /api/v1/attempts/:id/submit
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	h.transition(c, h.attemptService.Submit)
}

// ExtendTime godoc
// POST /api/v1/attempts/:id/extend
func (h *AttemptHandler) ExtendTime(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.ExtendTimeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.ExtendTime(c.Request.Context(), id, req.ExtraSeconds)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}

// RecordAnswer godoc
// PUT /api/v1/attempts/:id/answers
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.attemptService.RecordAnswer(c.Request.Context(), id, toAnswerInput(req))
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, answer)
}

// Autosave godoc
// POST /api/v1/attempts/:id/autosave
// Saves a batch of answers; either all are stored or none.
func (h *AttemptHandler) Autosave(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	inputs := make([]service.RecordAnswerInput, len(req.Answers))
	for i, a := range req.Answers {
		inputs[i] = toAnswerInput(a)
	}

	attempt, err := h.attemptService.RecordAnswers(c.Request.Context(), id, inputs)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}

// TerminateAttempt godoc
// POST /api/v1/attempts/:id/terminate
func (h *AttemptHandler) TerminateAttempt(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.TerminateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Terminate(c.Request.Context(), id, req.Reason)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}

// ListUserAttempts godoc
// GET /api/v1/users/:user_id/attempts?state=active|completed
func (h *AttemptHandler) ListUserAttempts(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}

	var q model.ListAttemptsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var (
		attempts []model.Attempt
		err      error
	)
	if q.State == model.AttemptListCompleted {
		attempts, err = h.attemptService.ListCompleted(c.Request.Context(), userID)
	} else {
		attempts, err = h.attemptService.ListActive(c.Request.Context(), userID)
	}
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

func (h *AttemptHandler) transition(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*model.Attempt, error)) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	attempt, err := op(c.Request.Context(), id)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}

func toAnswerInput(req model.RecordAnswerRequest) service.RecordAnswerInput {
	return service.RecordAnswerInput{
		QuestionID: uuid.MustParse(req.QuestionID),
		Value:      req.Answer,
		TimeSpent:  req.TimeSpent,
	}
}
