package services

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/config"
	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

// StaleCloser closes open intervals whose last supporting completion is at
// least MissedDayThreshold days before asOf. It has no clock of its own; the
// scheduler decides when to run it and passes asOf.
type StaleCloser struct {
	store       store.Store
	clock       *calendar.Clock
	threshold   int
	concurrency int
}

func NewStaleCloser(st store.Store, cfg config.StreakConfig, clock *calendar.Clock) *StaleCloser {
	concurrency := cfg.SweepConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &StaleCloser{
		store:       st,
		clock:       clock,
		threshold:   cfg.MissedDayThreshold,
		concurrency: concurrency,
	}
}

// CloseStaleStreaks sweeps every habit with an open interval. A failing
// habit is recorded in the report and does not stop the others.
func (c *StaleCloser) CloseStaleStreaks(ctx context.Context, asOf civil.Date) (*streak.SweepReport, error) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	keys, err := c.store.HabitsWithOpenIntervals(ctx)
	if err != nil {
		return nil, err
	}

	report := &streak.SweepReport{AsOf: asOf, Checked: len(keys), Failed: []streak.HabitFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			closed, err := c.CloseStale(gctx, key, asOf)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("stale sweep failed for habit", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
				report.Failed = append(report.Failed, streak.HabitFailure{Habit: key, Error: err.Error()})
				return nil
			}
			report.Closed += closed
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("stale sweep finished", "as_of", asOf, "checked", report.Checked,
		"closed", report.Closed, "failed", len(report.Failed))
	return report, nil
}

// CloseStale closes the habit's open intervals when they have gone stale and
// returns how many were closed. Running it again with the same asOf is a
// no-op.
func (c *StaleCloser) CloseStale(ctx context.Context, key streak.HabitKey, asOf civil.Date) (int, error) {
	closed := 0
	err := c.store.WithinHabit(ctx, key, func(tx store.HabitTx) error {
		closed = 0

		intervals, err := tx.ListIntervals(ctx)
		if err != nil {
			return err
		}
		if _, ok := streak.OpenInterval(intervals); !ok {
			return nil
		}

		last, ok, err := tx.LastCompletion(ctx)
		if err != nil {
			return err
		}
		if !ok {
			// Nothing to anchor an end date on. The validator deals with
			// intervals that have no ledger behind them.
			return nil
		}

		reference := last
		restore, err := tx.LatestRestore(ctx)
		if err != nil {
			return err
		}
		if restore != nil {
			reference = calendar.Max(reference, restore.RestoredOn)
		}
		if asOf.DaysSince(reference) < c.threshold {
			return nil
		}

		now := c.clock.Timestamp()
		var touched []int
		for i := range intervals {
			if !intervals[i].IsCurrent() {
				continue
			}
			if last.Before(intervals[i].StartDate) {
				logger.Warn("open streak starts after last completion, leaving it open",
					"owner", key.OwnerID, "habit", key.HabitID, "start", intervals[i].StartDate, "last", last)
				continue
			}
			end := last
			intervals[i].EndDate = &end
			intervals[i].UpdatedAt = now
			touched = append(touched, i)
		}
		if len(touched) == 0 {
			return nil
		}

		dirty := make(map[int]bool, len(touched))
		for _, i := range touched {
			dirty[i] = true
		}
		for _, i := range streak.MarkLongest(intervals, asOf) {
			dirty[i] = true
			intervals[i].UpdatedAt = now
		}
		for i := range intervals {
			if !dirty[i] {
				continue
			}
			if err := tx.UpdateInterval(ctx, intervals[i]); err != nil {
				return err
			}
		}
		closed = len(touched)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if closed > 0 {
		staleClosed.Add(float64(closed))
		logger.Info("closed stale streak", "owner", key.OwnerID, "habit", key.HabitID, "as_of", asOf)
	}
	return closed, nil
}
