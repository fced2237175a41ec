package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterPerParam(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 2, time.Minute, ByParam("id"))
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.PUT("/attempts/:id/answers", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(id string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/attempts/"+id+"/answers", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusTooManyRequests, call("a"))
	assert.Equal(t, http.StatusOK, call("b"))

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, call("a"))
}

func TestRateLimiterCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 1, time.Second, nil)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("x"))
	now = now.Add(10 * time.Second)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}
