package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper reclaims abandoned sessions and reservations left behind by
// crashed processes.
type Sweeper struct {
	sessions *SessionManager
	claims   *ClaimManager
	interval time.Duration
	idle     time.Duration
	claimTTL time.Duration
	logger   *zap.Logger
}

type SweeperConfig struct {
	Interval    time.Duration
	SessionIdle time.Duration
	ClaimTTL    time.Duration
}

func NewSweeper(sessions *SessionManager, claims *ClaimManager, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		sessions: sessions,
		claims:   claims,
		interval: cfg.Interval,
		idle:     cfg.SessionIdle,
		claimTTL: cfg.ClaimTTL,
		logger:   logger,
	}
}

type SweepResult struct {
	ClosedSessions int
	ReleasedClaims []string
}

// Sweep closes idle sessions, then frees reservations older than the claim
// TTL that no live session owns.
func (w *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if w.idle > 0 {
		res.ClosedSessions = w.sessions.CloseIdle(ctx, w.idle)
	}
	if w.claimTTL > 0 {
		released, err := w.claims.ReleaseStale(ctx, w.claimTTL, w.sessions.LiveIDs())
		if err != nil {
			return res, err
		}
		res.ReleasedClaims = released
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (w *Sweeper) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := w.Sweep(ctx)
			if err != nil {
				w.logger.Warn("sweep failed", zap.Error(err))
				continue
			}
			if res.ClosedSessions > 0 || len(res.ReleasedClaims) > 0 {
				w.logger.Info("sweep finished",
					zap.Int("closed_sessions", res.ClosedSessions),
					zap.Int("released_claims", len(res.ReleasedClaims)),
				)
			}
		}
	}
}
