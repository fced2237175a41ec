package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/response"
)

// QuestionCache drops cached grading keys.
type QuestionCache interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// QuestionHandler lets the content service evict grading keys it changed.
type QuestionHandler struct {
	cache QuestionCache
	log   zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(cache QuestionCache, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		cache: cache,
		log:   log.With().Str("component", "question_handler").Logger(),
	}
}

// InvalidateQuestion godoc
// DELETE /api/v1/questions/:id/cache
func (h *QuestionHandler) InvalidateQuestion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.cache.Invalidate(c.Request.Context(), id); err != nil {
		h.log.Error().Err(err).Str("question_id", id.String()).Msg("Failed to invalidate question cache")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("question_id", id.String()).Msg("Question cache invalidated")
	response.Success(c, http.StatusOK, gin.H{"question_id": id})
}
