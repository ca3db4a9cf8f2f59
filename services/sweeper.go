package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const sweepLockKey = "freshmart:subscriptions:sweep"

// Locker hands out a best-effort lease so only one process sweeps at a time.
type Locker interface {
	// TryLock returns a release func when the lease was taken, or nil when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// SubscriptionSweeper expires ended subscriptions on a fixed interval.
type SubscriptionSweeper struct {
	subs     *SubscriptionService
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger
}

// NewSubscriptionSweeper builds a sweeper. A nil locker sweeps without coordination.
func NewSubscriptionSweeper(subs *SubscriptionService, locker Locker, interval, lockTTL time.Duration, logger *zap.Logger) (*SubscriptionSweeper, error) {
	if subs == nil {
		return nil, errors.New("subscription sweeper: subscription service is required")
	}
	if interval <= 0 {
		return nil, errors.New("subscription sweeper: interval must be positive")
	}
	if lockTTL <= 0 {
		lockTTL = interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionSweeper{
		subs:     subs,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   logger.Named("sweeper"),
	}, nil
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *SubscriptionSweeper) Run(ctx context.Context) error {
	s.logger.Info("subscription sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("subscription sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("subscription sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. It returns zero without sweeping when the
// lease is held elsewhere.
func (s *SubscriptionSweeper) RunOnce(ctx context.Context) (int64, error) {
	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
		if err != nil {
			return 0, err
		}
		if release == nil {
			s.logger.Debug("sweep lease held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sweep lease", zap.Error(err))
			}
		}()
	}
	return s.subs.SweepExpired(ctx)
}
