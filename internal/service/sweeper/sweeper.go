// Package sweeper periodically removes expired refresh tokens from the credential store
package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/metrics"
)

const defaultInterval = time.Hour

type refreshTokenRepo interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	// How often to sweep. If not set than default is used
	Interval time.Duration

	// Optional counters
	Metrics *metrics.Auth

	// Clock. If not set than time.Now is used
	Now func() time.Time
}

type Sweeper struct {
	interval time.Duration
	metrics  *metrics.Auth
	now      func() time.Time

	repo   refreshTokenRepo
	logger logger.Logger
}

func New(cfg Config, repo refreshTokenRepo, logger logger.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Sweeper{
		interval: cfg.Interval,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		repo:     repo,
		logger:   logger,
	}
}

// Sweep once and return number of cleared tokens
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	s.metrics.Purged(n)
	return n, nil
}

// Run sweeps every interval until ctx is done
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				n, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Error("Failed to purge expired refresh tokens", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Info("Expired refresh tokens purged", "count", n)
				}
			}
		}
	}()

	return idleStopped
}
