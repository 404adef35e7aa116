package authentication

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes expired refresh token records.
type Sweeper struct {
	service  AuthenticationService
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(service AuthenticationService, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.service.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("refresh token sweep failed", zap.Error(err))
		}
		return
	}
	if deleted > 0 {
		s.logger.Info("expired refresh tokens removed", zap.Int64("count", deleted))
	}
}
