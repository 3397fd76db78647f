package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

const (
	fixRecalculate    = "recalculate streaks"
	fixDuplicateOpen  = "remove duplicate ongoing streaks"
	fixInvalidDates   = "remove invalid streaks"
	fixOrphaned       = "remove orphaned streaks"
	validatorAttempts = 2
)

// Validator detects drift between the ledger and the stored intervals and
// repairs it. Each repair runs in a single habit transaction.
type Validator struct {
	store   store.Store
	streaks *StreakService
}

func NewValidator(st store.Store, streaks *StreakService) *Validator {
	return &Validator{store: st, streaks: streaks}
}

// Validate checks one habit and applies any fixes. A clean habit always
// returns a report with no issues and a nil error.
func (v *Validator) Validate(ctx context.Context, key streak.HabitKey, asOf civil.Date) (*streak.ValidationReport, error) {
	var (
		report *streak.ValidationReport
		err    error
	)
	for attempt := 1; attempt <= validatorAttempts; attempt++ {
		report, err = v.validateOnce(ctx, key, asOf)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("streak validation attempt failed", "owner", key.OwnerID, "habit", key.HabitID,
			"attempt", attempt, "error", err)
	}
	if err != nil {
		validatorIssues.WithLabelValues("inconsistent_state").Inc()
		logger.Error("streak repair could not be applied", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		return nil, &InconsistentStateError{Owner: key.OwnerID, Habit: key.HabitID, Err: err}
	}

	for _, issue := range report.Issues {
		validatorIssues.WithLabelValues(string(issue.Kind)).Inc()
	}
	if report.HasIssues {
		logger.Info("streak validation repaired habit", "owner", key.OwnerID, "habit", key.HabitID,
			"issues", len(report.Issues), "fixes", report.FixesApplied)
	}
	return report, nil
}

func (v *Validator) validateOnce(ctx context.Context, key streak.HabitKey, asOf civil.Date) (*streak.ValidationReport, error) {
	var report *streak.ValidationReport
	err := v.store.WithinHabit(ctx, key, func(tx store.HabitTx) error {
		dates, err := tx.ListCompletionDates(ctx)
		if err != nil {
			return err
		}
		stored, err := tx.ListIntervals(ctx)
		if err != nil {
			return err
		}

		report = inspect(dates, stored, asOf)
		return v.repair(ctx, tx, report, stored, asOf)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// inspect compares stored intervals against a strict derivation of dates.
// It records issues and the fixes they call for without touching storage.
func inspect(dates []civil.Date, stored []streak.Interval, asOf civil.Date) *streak.ValidationReport {
	report := &streak.ValidationReport{
		Issues:        []streak.Issue{},
		FixesApplied:  []string{},
		LedgerCount:   len(dates),
		IntervalCount: len(stored),
	}
	add := func(kind streak.IssueKind, fix, format string, args ...any) {
		report.Issues = append(report.Issues, streak.Issue{Kind: kind, Detail: fmt.Sprintf(format, args...)})
		for _, f := range report.FixesApplied {
			if f == fix {
				return
			}
		}
		report.FixesApplied = append(report.FixesApplied, fix)
	}

	storedOpen := 0
	for _, iv := range stored {
		if iv.IsCurrent() {
			storedOpen++
		}
	}

	if len(dates) > 0 {
		expected := streak.Derive(dates, streak.Options{Mode: streak.Strict, AsOf: asOf})
		if len(expected) != len(stored) {
			add(streak.IssueCountMismatch, fixRecalculate,
				"streak count mismatch: expected %d, found %d", len(expected), len(stored))
		}
		shouldHaveOpen := false
		for _, s := range expected {
			if s.Open() {
				shouldHaveOpen = true
			}
		}
		if shouldHaveOpen != (storedOpen > 0) {
			add(streak.IssueOngoingMismatch, fixRecalculate,
				"ongoing streak inconsistency: expected ongoing %t, found ongoing %t", shouldHaveOpen, storedOpen > 0)
		}
	}

	if storedOpen > 1 {
		add(streak.IssueMultipleOpen, fixDuplicateOpen, "multiple ongoing streaks found: %d", storedOpen)
	}
	for _, iv := range stored {
		if iv.Inverted() {
			add(streak.IssueInverted, fixInvalidDates,
				"invalid streak dates: start %s is after end %s", iv.StartDate, *iv.EndDate)
		}
	}
	if len(dates) == 0 && len(stored) > 0 {
		add(streak.IssueOrphaned, fixOrphaned, "orphaned streaks found: %d streaks but no logs", len(stored))
	}

	report.HasIssues = len(report.Issues) > 0
	report.Fixed = len(report.FixesApplied) > 0
	return report
}

func (v *Validator) repair(ctx context.Context, tx store.HabitTx, report *streak.ValidationReport, stored []streak.Interval, asOf civil.Date) error {
	if !report.Fixed {
		return nil
	}
	fixes := make(map[string]bool, len(report.FixesApplied))
	for _, f := range report.FixesApplied {
		fixes[f] = true
	}

	switch {
	case fixes[fixOrphaned]:
		return tx.ReplaceIntervals(ctx, nil)
	case fixes[fixRecalculate]:
		_, err := v.streaks.recalculate(ctx, tx, streak.Options{Mode: streak.Strict, AsOf: asOf}, false)
		return err
	}

	// Keep the open interval with the latest start and anything that is not
	// inverted; everything else goes.
	keepOpen, _ := streak.OpenInterval(stored)
	var drop []uuid.UUID
	kept := make([]streak.Interval, 0, len(stored))
	for _, iv := range stored {
		switch {
		case iv.IsCurrent() && iv.ID != keepOpen.ID:
			drop = append(drop, iv.ID)
		case iv.Inverted():
			drop = append(drop, iv.ID)
		default:
			kept = append(kept, iv)
		}
	}
	if err := tx.DeleteIntervals(ctx, drop); err != nil {
		return err
	}

	now := v.streaks.clock.Timestamp()
	for _, i := range streak.MarkLongest(kept, asOf) {
		kept[i].UpdatedAt = now
		if err := tx.UpdateInterval(ctx, kept[i]); err != nil {
			return err
		}
	}
	return nil
}
