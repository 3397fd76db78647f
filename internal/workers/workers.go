package workers

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/streak"
)

type Sweeper interface {
	CloseStaleStreaks(ctx context.Context, asOf civil.Date) (*streak.SweepReport, error)
}

// RunStaleSweep closes stale streaks once at start and then on every tick
// until ctx is cancelled. today is read on each run so the sweep follows
// the calendar.
func RunStaleSweep(ctx context.Context, sweeper Sweeper, today func() civil.Date, interval time.Duration) {
	if interval <= 0 {
		logger.Info("stale sweep scheduler disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweepOnce(ctx, sweeper, today())
	for {
		select {
		case <-ctx.Done():
			logger.Info("stale sweep scheduler stopped")
			return
		case <-ticker.C:
			sweepOnce(ctx, sweeper, today())
		}
	}
}

func sweepOnce(ctx context.Context, sweeper Sweeper, asOf civil.Date) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	logger.Info("starting stale streak sweep", "as_of", asOf)
	report, err := sweeper.CloseStaleStreaks(ctx, asOf)
	if err != nil {
		logger.Error("stale streak sweep failed", "as_of", asOf, "error", err)
		return
	}
	logger.Info("stale streak sweep done", "as_of", asOf, "checked", report.Checked,
		"closed", report.Closed, "failed", len(report.Failed))
}
