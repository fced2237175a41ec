package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/handler"
	"github.com/stemsi/exstem-attempts/internal/middleware"
	"github.com/stemsi/exstem-attempts/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt  *handler.AttemptHandler
	Question *handler.QuestionHandler
	WS       *handler.WSHandler
}

// SetupRouter configures the Gin engine. ctx bounds background helpers
// such as rate limiter cleanup.
func SetupRouter(ctx context.Context, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set; otherwise allow all so dev works
	// without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:      middleware.DefaultBrotliConfig.Quality,
		MinLength:    middleware.DefaultBrotliConfig.MinLength,
		SkipPrefixes: []string{"/ws/"},
	}))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Answer writes are throttled per attempt.
	answerLimiter := middleware.NewRateLimiter(ctx, cfg.AnswerRateLimit, time.Minute, middleware.ByParam("id"))

	// ─── Attempts ──────────────────────────────────────────────────────
	attempts := router.Group("/api/v1/attempts")
	{
		attempts.POST("", handlers.Attempt.StartAttempt)
		attempts.GET("/:id", handlers.Attempt.GetAttempt)
		attempts.POST("/:id/pause", handlers.Attempt.PauseAttempt)
		attempts.POST("/:id/resume", handlers.Attempt.ResumeAttempt)
		attempts.POST("/:id/extend", handlers.Attempt.ExtendTime)
		attempts.PUT("/:id/answers", answerLimiter.Middleware(), handlers.Attempt.RecordAnswer)
		attempts.POST("/:id/autosave", answerLimiter.Middleware(), handlers.Attempt.Autosave)
		attempts.POST("/:id/submit", handlers.Attempt.SubmitAttempt)
		attempts.POST("/:id/terminate", handlers.Attempt.TerminateAttempt)
	}

	router.GET("/api/v1/users/:user_id/attempts", handlers.Attempt.ListUserAttempts)

	// ─── Questions ─────────────────────────────────────────────────────
	router.DELETE("/api/v1/questions/:id/cache", handlers.Question.InvalidateQuestion)

	// ─── WebSocket ─────────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	return router
}
