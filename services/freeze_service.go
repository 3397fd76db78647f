package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/keymutex"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

// FreezeGate reports an owner's freeze usage for the month containing the
// given date.
type FreezeGate interface {
	Usage(ctx context.Context, ownerID string, asOf civil.Date) (*streak.FreezeUsage, error)
}

// PlanQuotaGate allows proLimit freezes per calendar month on the pro plan
// and none on the free plan.
type PlanQuotaGate struct {
	store    store.Store
	proLimit int
}

func NewPlanQuotaGate(st store.Store, proLimit int) *PlanQuotaGate {
	return &PlanQuotaGate{store: st, proLimit: proLimit}
}

func (g *PlanQuotaGate) Usage(ctx context.Context, ownerID string, asOf civil.Date) (*streak.FreezeUsage, error) {
	plan, err := g.store.PlanFor(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	limit := 0
	if plan == store.PlanPro {
		limit = g.proLimit
	}

	first, last := calendar.MonthBounds(asOf)
	used, err := g.store.CountFreezesBetween(ctx, ownerID, first, last)
	if err != nil {
		return nil, fmt.Errorf("failed to count freezes: %w", err)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &streak.FreezeUsage{Limit: limit, Used: used, Remaining: remaining}, nil
}

type FreezeService struct {
	streaks *StreakService
	gate    FreezeGate
	owners  *keymutex.KeyMutex
}

func NewFreezeService(streaks *StreakService, gate FreezeGate) *FreezeService {
	return &FreezeService{streaks: streaks, gate: gate, owners: keymutex.New()}
}

// Freeze authorizes and records a freeze day against the quota of date's
// month. When that quota is exhausted it returns ErrFreezeNotAllowed together
// with the month's usage.
func (s *FreezeService) Freeze(ctx context.Context, key streak.HabitKey, date civil.Date, reason string) (*streak.FreezeDay, *streak.FreezeUsage, error) {
	// Quota is per owner across habits.
	unlock := s.owners.Lock(key.OwnerID)
	defer unlock()

	// Usage is for the month the freeze date falls in.
	usage, err := s.gate.Usage(ctx, key.OwnerID, date)
	if err != nil {
		return nil, nil, err
	}
	if usage.Remaining <= 0 {
		return nil, usage, ErrFreezeNotAllowed
	}

	freeze, err := s.streaks.OnFreezeDayAdded(ctx, key, date, reason, s.streaks.Today())
	if err != nil {
		return nil, usage, err
	}

	usage.Used++
	usage.Remaining--
	return freeze, usage, nil
}

func (s *FreezeService) Usage(ctx context.Context, ownerID string) (*streak.FreezeUsage, error) {
	return s.gate.Usage(ctx, ownerID, s.streaks.Today())
}
