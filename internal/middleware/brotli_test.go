package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brotliRouter(body string) *gin.Engine {
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 64, SkipPrefixes: []string{"/ws/"}}))
	h := func(c *gin.Context) { c.String(http.StatusOK, body) }
	r.GET("/data", h)
	r.GET("/ws/stream", h)
	return r
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	body := strings.Repeat("attempt ", 100)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
	brotliRouter(body).ServeHTTP(w, req)

	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestBrotliLeavesSmallBodies(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Accept-Encoding", "br")
	brotliRouter("ok").ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestBrotliSkipsPrefixesAndPlainClients(t *testing.T) {
	body := strings.Repeat("x", 500)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/stream", nil)
	req.Header.Set("Accept-Encoding", "br")
	brotliRouter(body).ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))

	w = httptest.NewRecorder()
	brotliRouter(body).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, body, w.Body.String())
}
