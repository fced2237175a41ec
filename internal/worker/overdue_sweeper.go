package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"golang.org/x/sync/errgroup"
)

// AttemptExpirer is the slice of the attempt service the sweeper drives.
type AttemptExpirer interface {
	ListOverdue(ctx context.Context, limit int) ([]uuid.UUID, error)
	ForceExpire(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
}

// Lease guards a sweep so only one replica runs it per tick.
type Lease interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// SweeperConfig tunes the sweeper.
type SweeperConfig struct {
	Interval       time.Duration
	BatchSize      int
	Concurrency    int
	AttemptTimeout time.Duration
	LeaseKey       string
	LeaseTTL       time.Duration
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// OverdueSweeper periodically force-expires attempts whose time ran out.
type OverdueSweeper struct {
	attempts AttemptExpirer
	lease    Lease
	cfg      SweeperConfig
	token    string
	log      zerolog.Logger
}

// NewOverdueSweeper creates a new OverdueSweeper. lease may be nil, in which
// case every sweep runs unguarded.
func NewOverdueSweeper(attempts AttemptExpirer, lease Lease, cfg SweeperConfig, log zerolog.Logger) *OverdueSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval
	}
	return &OverdueSweeper{
		attempts: attempts,
		lease:    lease,
		cfg:      cfg,
		token:    uuid.NewString(),
		log:      log.With().Str("component", "overdue_sweeper").Logger(),
	}
}

// Start sweeps every Interval until ctx is cancelled.
func (s *OverdueSweeper) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("OverdueSweeper started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("OverdueSweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("Sweep failed")
			}
		}
	}
}

// SweepOnce expires one batch of overdue attempts. Per-attempt failures are
// logged and counted; they never abort the sweep.
func (s *OverdueSweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.cfg.LeaseKey, s.token, s.cfg.LeaseTTL)
		if err != nil {
			return res, err
		}
		if !ok {
			s.log.Debug().Msg("Another replica holds the sweep lease")
			return res, nil
		}
		defer func() {
			if err := s.lease.Release(context.Background(), s.cfg.LeaseKey, s.token); err != nil {
				s.log.Warn().Err(err).Msg("Failed to release sweep lease")
			}
		}()
	}

	ids, err := s.attempts.ListOverdue(ctx, s.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	res.Scanned = len(ids)
	if len(ids) == 0 {
		return res, nil
	}

	var expired, skipped, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch err := s.expire(ctx, id); {
			case err == nil:
				expired.Add(1)
			case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrNotFound):
				skipped.Add(1)
				s.log.Info().Str("attempt_id", id.String()).Err(err).Msg("Attempt already resolved, skipping")
			default:
				failed.Add(1)
				s.log.Error().Str("attempt_id", id.String()).Err(err).Msg("Failed to expire attempt")
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Expired = int(expired.Load())
	res.Skipped = int(skipped.Load())
	res.Failed = int(failed.Load())

	s.log.Info().
		Int("scanned", res.Scanned).
		Int("expired", res.Expired).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Sweep finished")
	return res, nil
}

func (s *OverdueSweeper) expire(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	a, err := s.attempts.ForceExpire(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != model.AttemptStatusExpired {
		return model.ErrInvalidState
	}
	s.log.Info().
		Str("attempt_id", id.String()).
		Str("user_id", a.UserID.String()).
		Msg("Force-expired overdue attempt")
	return nil
}
