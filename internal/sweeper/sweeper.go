// Package sweeper rejects deposit requests that stayed pending for too long.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Tung090505/Shop-game-sub000/internal/clock"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/metrics"
)

const leaseKey = "sweeper:lease:v1"

// Expirer rejects every pending request created before cutoff.
type Expirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper runs the expiry pass on a fixed interval.
type Sweeper struct {
	deposits Expirer
	interval time.Duration
	maxAge   time.Duration
	lease    *redis.Client
	holder   string
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithLease coordinates replicas through a Redis SET NX lease so at most one of them sweeps
// per tick. Without it every process sweeps.
func WithLease(client *redis.Client) Option { return func(s *Sweeper) { s.lease = client } }

func WithClock(c clock.Clock) Option { return func(s *Sweeper) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Sweeper) { s.logger = logging.Component(l, "sweeper") } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Sweeper) { s.metrics = m } }

// New creates a sweeper rejecting requests older than maxAge every interval.
func New(deposits Expirer, interval, maxAge time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		deposits: deposits,
		interval: interval,
		maxAge:   maxAge,
		holder:   uuid.NewString(),
		clock:    clock.Real{},
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", slog.Duration("interval", s.interval), slog.Duration("max_age", s.maxAge))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sweep failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass and returns how many requests it expired. A pass skipped
// because another replica holds the lease returns zero and no error.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	acquired, err := s.acquire(ctx)
	if err != nil {
		s.metrics.Sweep("error", 0, now)
		return 0, err
	}
	if !acquired {
		s.metrics.Sweep("skipped", 0, now)
		return 0, nil
	}

	expired, err := s.deposits.ExpirePending(ctx, now.Add(-s.maxAge))
	if err != nil {
		s.metrics.Sweep("error", expired, now)
		return expired, err
	}
	s.metrics.Sweep("ok", expired, now)
	if expired > 0 {
		s.logger.Info("expired pending deposits", slog.Int("count", expired))
	}
	return expired, nil
}

// acquire takes the lease for slightly less than one interval, so the next tick of any
// replica can claim it again.
func (s *Sweeper) acquire(ctx context.Context) (bool, error) {
	if s.lease == nil {
		return true, nil
	}
	ttl := s.interval - s.interval/10
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.lease.SetNX(ctx, leaseKey, s.holder, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
