package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/audit"
	"github.com/stemsi/exstem-attempts/internal/clock"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/database"
	"github.com/stemsi/exstem-attempts/internal/handler"
	"github.com/stemsi/exstem-attempts/internal/logger"
	"github.com/stemsi/exstem-attempts/internal/repository"
	"github.com/stemsi/exstem-attempts/internal/router"
	"github.com/stemsi/exstem-attempts/internal/scoring"
	"github.com/stemsi/exstem-attempts/internal/service"
	"github.com/stemsi/exstem-attempts/internal/validator"
	"github.com/stemsi/exstem-attempts/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem attempt service")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)
	questionRepo := repository.NewCachedQuestionRepository(
		rdb, repository.NewQuestionRepository(pool), cfg.QuestionCacheTTL, log,
	)
	leaseRepo := repository.NewLeaseRepository(rdb)

	// ─── Audit Trail ───────────────────────────────────────────────────
	auditQueue := audit.NewQueueSink(rdb, config.WorkerKey.PersistAttemptEventsQueue, cfg.AuditBufferSize, log)
	auditSink := audit.Multi{audit.NewLogSink(log), auditQueue}

	// ─── Initialize Services ──────────────────────────────────────────
	attemptService := service.NewAttemptService(
		attemptRepo,
		questionRepo,
		clock.Real{},
		scoring.NewEngine(),
		auditSink,
		service.AttemptOptions{ExtendWhilePaused: cfg.ExtendWhilePaused},
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt:  handler.NewAttemptHandler(attemptService, log),
		Question: handler.NewQuestionHandler(questionRepo, log),
		WS:       handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	sweeper := worker.NewOverdueSweeper(attemptService, leaseRepo, worker.SweeperConfig{
		Interval:       cfg.SweepInterval,
		BatchSize:      cfg.SweepBatchSize,
		Concurrency:    cfg.SweepConcurrency,
		AttemptTimeout: cfg.SweepAttemptTimeout,
		LeaseKey:       config.CacheKey.SweepLeaseKey(),
		LeaseTTL:       cfg.SweepLease,
	}, log)
	auditWorker := worker.NewAuditWorker(pool, rdb, log)

	for _, start := range []func(context.Context){auditQueue.Start, auditWorker.Start, sweeper.Start} {
		workers.Add(1)
		go func(start func(context.Context)) {
			defer workers.Done()
			start(workerCtx)
		}(start)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their buffers to flush.
	workerCancel()
	workers.Wait()

	if n := auditQueue.Dropped(); n > 0 {
		log.Warn().Int64("dropped", n).Msg("Audit events dropped due to a full buffer")
	}
	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
