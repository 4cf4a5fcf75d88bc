package otp

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweepable is a store that can purge expired entries in bulk.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper periodically purges expired entries. Expiry is still enforced on read, so the
// sweeper only bounds memory.
type Sweeper struct {
	store    Sweepable
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewSweeper(store Sweepable, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("otp: starting sweeper", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("otp: stopping sweeper")
			return
		case <-ctx.Done():
			s.logger.Info("otp: context cancelled, stopping sweeper")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.store.Sweep(ctx)
	if err != nil {
		s.logger.Error("otp: sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("otp: swept expired entries", zap.Int("count", n))
	}
}

// Stop ends Start. It must be called at most once.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}
