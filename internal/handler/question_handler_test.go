package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeQuestionCache struct {
	evicted []uuid.UUID
	err     error
}

func (f *fakeQuestionCache) Invalidate(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.evicted = append(f.evicted, id)
	return nil
}

func newQuestionRouter(cache QuestionCache) *gin.Engine {
	h := NewQuestionHandler(cache, zerolog.Nop())
	r := gin.New()
	r.DELETE("/api/v1/questions/:id/cache", h.InvalidateQuestion)
	return r
}

func TestInvalidateQuestionEndpoint(t *testing.T) {
	cache := &fakeQuestionCache{}
	r := newQuestionRouter(cache)
	id := uuid.New()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/questions/"+id.String()+"/cache", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{id}, cache.evicted)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/questions/nope/cache", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidateQuestionCacheFailure(t *testing.T) {
	r := newQuestionRouter(&fakeQuestionCache{err: errors.New("redis down")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/questions/"+uuid.NewString()+"/cache", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
