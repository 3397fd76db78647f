package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/config"
	"habitStreakAPI/internal/keymutex"
	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

// StreakService is the mutation coordinator. Every write runs inside
// store.WithinHabit so read ledger, derive, replace and mark longest happen
// under one per-habit lock.
type StreakService struct {
	store    store.Store
	cfg      config.StreakConfig
	clock    *calendar.Clock
	payments *keymutex.KeyMutex
}

func NewStreakService(st store.Store, cfg config.StreakConfig, clock *calendar.Clock) *StreakService {
	return &StreakService{
		store:    st,
		cfg:      cfg,
		clock:    clock,
		payments: keymutex.New(),
	}
}

// RestorePayment carries the correlation key and price details of a
// confirmed restore payment.
type RestorePayment struct {
	Key        string
	PriceID    string
	PriceCents int64
	Currency   string
}

type RestoreResult struct {
	Record    *streak.RestoreRecord
	Current   *streak.CurrentStreak
	Duplicate bool
}

var errDuplicateRestore = errors.New("restore already applied")

func (s *StreakService) Today() civil.Date {
	return s.clock.Today()
}

// EnsureHabit returns ErrHabitNotFound unless key.OwnerID owns the habit.
func (s *StreakService) EnsureHabit(ctx context.Context, key streak.HabitKey) error {
	ok, err := s.store.HabitOwnedBy(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check habit ownership: %w", err)
	}
	if !ok {
		return ErrHabitNotFound
	}
	return nil
}

func (s *StreakService) logAddedOptions(asOf civil.Date) streak.Options {
	return streak.Options{Mode: s.cfg.LogMode, AsOf: asOf, UndoGapTolerance: s.cfg.UndoGapTolerance}
}

// Undo re-derives with gaps up to the tolerance bridged and the final run
// left open.
func (s *StreakService) logRemovedOptions(asOf civil.Date) streak.Options {
	return streak.Options{Mode: streak.UndoBiased, AsOf: asOf, UndoGapTolerance: s.cfg.UndoGapTolerance}
}

// OnLogAdded re-derives the habit's intervals after a completion was added.
func (s *StreakService) OnLogAdded(ctx context.Context, key streak.HabitKey, asOf civil.Date) (*streak.MutationResult, error) {
	return s.rederive(ctx, "log_added", key, s.logAddedOptions(asOf), nil)
}

// OnLogRemoved re-derives after an undo.
func (s *StreakService) OnLogRemoved(ctx context.Context, key streak.HabitKey, asOf civil.Date) (*streak.MutationResult, error) {
	return s.rederive(ctx, "log_removed", key, s.logRemovedOptions(asOf), nil)
}

// RecordCompletion adds date to the ledger and runs OnLogAdded in the same
// unit of work. A date already logged returns store.ErrDuplicateLog.
func (s *StreakService) RecordCompletion(ctx context.Context, key streak.HabitKey, date, asOf civil.Date) (*streak.MutationResult, error) {
	return s.rederive(ctx, "log_added", key, s.logAddedOptions(asOf), func(tx store.HabitTx) error {
		return tx.AddCompletion(ctx, date)
	})
}

// RemoveCompletion deletes date from the ledger and runs OnLogRemoved in the
// same unit of work. It returns ErrNoLogToday when date has no entry.
func (s *StreakService) RemoveCompletion(ctx context.Context, key streak.HabitKey, date, asOf civil.Date) (*streak.MutationResult, error) {
	return s.rederive(ctx, "log_removed", key, s.logRemovedOptions(asOf), func(tx store.HabitTx) error {
		logged, err := tx.HasCompletionOn(ctx, date)
		if err != nil {
			return err
		}
		if !logged {
			return ErrNoLogToday
		}
		removed, err := tx.DeleteCompletion(ctx, date)
		if err != nil {
			return err
		}
		if !removed {
			return ErrNoLogToday
		}
		return nil
	})
}

// rederive runs write, when given, and the recalculation under one habit
// lock. Nothing is kept if either fails.
func (s *StreakService) rederive(ctx context.Context, op string, key streak.HabitKey, opts streak.Options, write func(tx store.HabitTx) error) (*streak.MutationResult, error) {
	var intervals []streak.Interval
	err := s.store.WithinHabit(ctx, key, func(tx store.HabitTx) error {
		if write != nil {
			if err := write(tx); err != nil {
				return err
			}
		}
		var err error
		intervals, err = s.recalculate(ctx, tx, opts, s.cfg.BridgeFreezes)
		return err
	})
	streakMutations.WithLabelValues(op, result(err)).Inc()
	switch {
	case errors.Is(err, store.ErrDuplicateLog), errors.Is(err, ErrNoLogToday):
		return nil, err
	case err != nil:
		logger.Warn("streak mutation failed", "op", op, "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		return nil, err
	}

	logger.Debug("streak recalculated", "op", op, "owner", key.OwnerID, "habit", key.HabitID,
		"mode", opts.Mode, "intervals", len(intervals))
	return &streak.MutationResult{
		Intervals: newestFirst(intervals),
		Current:   currentOf(intervals, opts.AsOf),
	}, nil
}

// recalculate replaces the stored set with a fresh derivation of the ledger.
func (s *StreakService) recalculate(ctx context.Context, tx store.HabitTx, opts streak.Options, bridgeFreezes bool) ([]streak.Interval, error) {
	dates, err := tx.ListCompletionDates(ctx)
	if err != nil {
		return nil, err
	}
	if bridgeFreezes {
		frozen, err := tx.ListFreezeDates(ctx)
		if err != nil {
			return nil, err
		}
		opts.Frozen = frozen
	}

	intervals := streak.NewIntervals(tx.Key(), streak.Derive(dates, opts), s.clock.Timestamp())
	streak.MarkLongest(intervals, opts.AsOf)
	if err := tx.ReplaceIntervals(ctx, intervals); err != nil {
		return nil, err
	}
	return intervals, nil
}

// OnFreezeDayAdded persists an already authorized freeze day. Intervals are
// only re-derived when freeze bridging is enabled.
func (s *StreakService) OnFreezeDayAdded(ctx context.Context, key streak.HabitKey, date civil.Date, reason string, asOf civil.Date) (*streak.FreezeDay, error) {
	freeze := &streak.FreezeDay{
		ID:        uuid.New(),
		OwnerID:   key.OwnerID,
		HabitID:   key.HabitID,
		Date:      date,
		Reason:    reason,
		CreatedAt: s.clock.Timestamp(),
	}

	err := s.store.WithinHabit(ctx, key, func(tx store.HabitTx) error {
		frozen, err := tx.ListFreezeDates(ctx)
		if err != nil {
			return err
		}
		for _, d := range frozen {
			if d == date {
				return ErrAlreadyFrozen
			}
		}
		if err := tx.InsertFreeze(ctx, *freeze); err != nil {
			return err
		}
		if !s.cfg.BridgeFreezes {
			return nil
		}
		_, err = s.recalculate(ctx, tx, streak.Options{
			Mode:             s.cfg.LogMode,
			AsOf:             asOf,
			UndoGapTolerance: s.cfg.UndoGapTolerance,
		}, true)
		return err
	})
	streakMutations.WithLabelValues("freeze_added", result(err)).Inc()
	if err != nil {
		return nil, err
	}

	logger.Info("streak freeze recorded", "owner", key.OwnerID, "habit", key.HabitID, "date", date)
	return freeze, nil
}

// OnRestoreApplied reopens the most recently closed interval. A payment key
// that was already applied yields a Duplicate result and changes nothing.
func (s *StreakService) OnRestoreApplied(ctx context.Context, key streak.HabitKey, payment RestorePayment, asOf civil.Date) (*RestoreResult, error) {
	if payment.Key == "" {
		return nil, ErrPaymentKeyRequired
	}

	unlock := s.payments.Lock(payment.Key)
	defer unlock()

	var res RestoreResult
	err := s.store.WithinHabit(ctx, key, func(tx store.HabitTx) error {
		if err := tx.LockPayment(ctx, payment.Key); err != nil {
			return err
		}
		existing, err := tx.FindRestoreByPayment(ctx, payment.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			res.Record = existing
			return errDuplicateRestore
		}

		intervals, err := tx.ListIntervals(ctx)
		if err != nil {
			return err
		}
		idx, ok := streak.LastClosed(intervals)
		if !ok {
			return ErrNoStreakToRestore
		}

		now := s.clock.Timestamp()
		target := intervals[idx]
		previousEnd := *target.EndDate

		// The reopened interval absorbs any other open run.
		var merged []uuid.UUID
		kept := make([]streak.Interval, 0, len(intervals))
		for _, iv := range intervals {
			if iv.ID != target.ID && iv.IsCurrent() {
				merged = append(merged, iv.ID)
				continue
			}
			kept = append(kept, iv)
		}
		if err := tx.DeleteIntervals(ctx, merged); err != nil {
			return err
		}

		targetIdx := -1
		for i := range kept {
			if kept[i].ID == target.ID {
				targetIdx = i
				kept[i].EndDate = nil
				kept[i].UpdatedAt = now
			}
		}
		changed := streak.MarkLongest(kept, asOf)
		dirty := map[int]bool{targetIdx: true}
		for _, i := range changed {
			dirty[i] = true
		}
		for i := range kept {
			if !dirty[i] {
				continue
			}
			kept[i].UpdatedAt = now
			if err := tx.UpdateInterval(ctx, kept[i]); err != nil {
				return err
			}
		}

		record := streak.RestoreRecord{
			ID:          uuid.New(),
			OwnerID:     key.OwnerID,
			HabitID:     key.HabitID,
			IntervalID:  target.ID,
			LostAt:      previousEnd.AddDays(1),
			PreviousEnd: previousEnd,
			RestoredOn:  asOf,
			RestoredAt:  now,
			PaymentKey:  payment.Key,
			PriceID:     payment.PriceID,
			PriceCents:  payment.PriceCents,
			Currency:    payment.Currency,
		}
		if record.PriceCents == 0 {
			record.PriceCents = streak.DefaultRestorePriceCents
		}
		if record.Currency == "" {
			record.Currency = streak.DefaultRestoreCurrency
		}
		if err := tx.InsertRestore(ctx, record); err != nil {
			if errors.Is(err, store.ErrDuplicatePayment) {
				return errDuplicateRestore
			}
			return err
		}

		res.Record = &record
		res.Current = currentOf(kept, asOf)
		return nil
	})

	switch {
	case errors.Is(err, errDuplicateRestore):
		streakRestores.WithLabelValues("duplicate").Inc()
		logger.Info("restore already applied", "owner", key.OwnerID, "habit", key.HabitID, "payment", payment.Key)
		res.Duplicate = true
		current, err := s.Current(ctx, key, asOf)
		if err != nil {
			logger.Warn("failed to load streak after duplicate restore", "owner", key.OwnerID, "habit", key.HabitID, "payment", payment.Key, "error", err)
		}
		res.Current = current
		return &res, nil
	case errors.Is(err, ErrNoStreakToRestore):
		streakRestores.WithLabelValues("nothing_to_restore").Inc()
		return nil, err
	case err != nil:
		streakRestores.WithLabelValues("error").Inc()
		logger.Error("restore failed", "owner", key.OwnerID, "habit", key.HabitID, "payment", payment.Key, "error", err)
		return nil, err
	}

	streakRestores.WithLabelValues("applied").Inc()
	logger.Info("streak restored", "owner", key.OwnerID, "habit", key.HabitID,
		"previous_end", res.Record.PreviousEnd, "payment", payment.Key)
	return &res, nil
}

// Intervals lists the stored intervals newest first without taking the
// habit lock.
func (s *StreakService) Intervals(ctx context.Context, key streak.HabitKey) ([]streak.Interval, error) {
	return s.store.ListIntervals(ctx, key)
}

// Current returns the open interval with its day count, or nil when there is
// none. It never writes.
func (s *StreakService) Current(ctx context.Context, key streak.HabitKey, asOf civil.Date) (*streak.CurrentStreak, error) {
	intervals, err := s.store.ListIntervals(ctx, key)
	if err != nil {
		return nil, err
	}
	return currentOf(intervals, asOf), nil
}

func (s *StreakService) Stats(ctx context.Context, key streak.HabitKey, asOf civil.Date) (*streak.Stats, error) {
	intervals, err := s.store.ListIntervals(ctx, key)
	if err != nil {
		return nil, err
	}
	return statsOf(intervals, asOf), nil
}

func statsOf(intervals []streak.Interval, asOf civil.Date) *streak.Stats {
	stats := &streak.Stats{TotalStreaks: len(intervals)}
	if len(intervals) == 0 {
		return stats
	}

	total := 0
	for _, iv := range intervals {
		n := streak.Length(iv.Span(), asOf)
		total += n
		if n > stats.LongestStreak {
			stats.LongestStreak = n
		}
	}
	if cur := currentOf(intervals, asOf); cur != nil {
		stats.CurrentStreak = cur.StreakDays
	}
	stats.AverageStreak = int(math.Round(float64(total) / float64(len(intervals))))
	return stats
}

func currentOf(intervals []streak.Interval, asOf civil.Date) *streak.CurrentStreak {
	open, ok := streak.OpenInterval(intervals)
	if !ok {
		return nil
	}
	return &streak.CurrentStreak{
		Interval:   open,
		StreakDays: streak.CurrentDays(open.Span(), asOf),
	}
}

func newestFirst(intervals []streak.Interval) []streak.Interval {
	out := append([]streak.Interval(nil), intervals...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out
}
