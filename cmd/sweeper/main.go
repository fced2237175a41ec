// Command sweeper force-expires overdue attempts. Run it with -once from an
// external scheduler, or without to loop on SWEEP_INTERVAL_SECONDS.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/stemsi/exstem-attempts/internal/audit"
	"github.com/stemsi/exstem-attempts/internal/clock"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/database"
	"github.com/stemsi/exstem-attempts/internal/logger"
	"github.com/stemsi/exstem-attempts/internal/repository"
	"github.com/stemsi/exstem-attempts/internal/scoring"
	"github.com/stemsi/exstem-attempts/internal/service"
	"github.com/stemsi/exstem-attempts/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	os.Exit(run(*once))
}

// run returns the process exit code: 1 when the sweep could not run, 2 when
// some attempts failed to expire.
func run(once bool) int {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Events are pushed straight onto the queue the server's audit worker
	// drains.
	auditQueue := audit.NewQueueSink(rdb, config.WorkerKey.PersistAttemptEventsQueue, cfg.AuditBufferSize, log)
	queueCtx, queueCancel := context.WithCancel(context.Background())
	go auditQueue.Start(queueCtx)

	attemptService := service.NewAttemptService(
		repository.NewAttemptRepository(pool),
		repository.NewQuestionRepository(pool),
		clock.Real{},
		scoring.NewEngine(),
		audit.Multi{audit.NewLogSink(log), auditQueue},
		service.AttemptOptions{ExtendWhilePaused: cfg.ExtendWhilePaused},
		log,
	)

	sweeper := worker.NewOverdueSweeper(attemptService, repository.NewLeaseRepository(rdb), worker.SweeperConfig{
		Interval:       cfg.SweepInterval,
		BatchSize:      cfg.SweepBatchSize,
		Concurrency:    cfg.SweepConcurrency,
		AttemptTimeout: cfg.SweepAttemptTimeout,
		LeaseKey:       config.CacheKey.SweepLeaseKey(),
		LeaseTTL:       cfg.SweepLease,
	}, log)

	exitCode := 0
	if once {
		res, err := sweeper.SweepOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Sweep failed")
			exitCode = 1
		} else if res.Failed > 0 {
			exitCode = 2
		}
	} else {
		sweeper.Start(ctx)
	}

	queueCancel()
	auditQueue.Wait()
	return exitCode
}
