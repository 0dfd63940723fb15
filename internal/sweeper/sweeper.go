// Package sweeper runs the periodic expiration sweep that reclaims stale
// reservation holds.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/erazemk/tiskarna/internal/reserve"
)

// DefaultInterval is the sweep interval used when none is configured.
const DefaultInterval = time.Minute

// Sweeper periodically expires stale active reservations.
type Sweeper struct {
	Engine   *reserve.Engine
	Interval time.Duration
}

// New creates a sweeper. A non-positive interval falls back to
// DefaultInterval.
func New(engine *reserve.Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{Engine: engine, Interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled. Sweep
// failures are logged and retried on the next tick; they never stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	slog.Info("expiration sweeper started", "interval", s.Interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("expiration sweeper stopped")
			return
		case <-ticker.C:
			count, err := s.Engine.SweepExpired(ctx)
			if err != nil {
				slog.Warn("expiration sweep failed", "error", err)
				continue
			}
			if count > 0 {
				slog.Info("expired stale reservations", "count", count)
			}
		}
	}
}
