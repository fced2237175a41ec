package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
)

// classify maps a service error onto an HTTP status and error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest, response.ErrInvalidArgument
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict, response.ErrInvalidState
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failFromError writes the error response for a service error. Internal
// errors are logged and their detail is not exposed.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if code == response.ErrInternal {
		log.Error().Err(err).
			Str("request_id", c.GetString(response.ContextKeyRequestID)).
			Str("path", c.FullPath()).
			Msg("Request failed")
		response.Fail(c, status, code)
		return
	}
	response.FailWithDetail(c, status, code, err.Error())
}

// parseIDParam reads a UUID path parameter, answering 400 when malformed.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
