package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/config"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

func TestFreeze_FreePlanIsDenied(t *testing.T) {
	e := newTestEngine(t, "2025-03-15")
	freezes := NewFreezeService(e.streaks, NewPlanQuotaGate(e.store, 2))

	_, usage, err := freezes.Freeze(context.Background(), testKey, calendar.MustParse("2025-03-14"), "")
	assert.ErrorIs(t, err, ErrFreezeNotAllowed)
	assert.Equal(t, streak.FreezeUsage{Limit: 0, Used: 0, Remaining: 0}, *usage)
	assert.Empty(t, e.store.Freezes(testKey))
}

func TestFreeze_ProPlanQuota(t *testing.T) {
	e := newTestEngine(t, "2025-03-15")
	ctx := context.Background()
	require.NoError(t, e.store.SetPlan(ctx, testKey.OwnerID, store.PlanPro))
	freezes := NewFreezeService(e.streaks, NewPlanQuotaGate(e.store, 2))

	_, usage, err := freezes.Freeze(ctx, testKey, calendar.MustParse("2025-03-10"), "sick")
	require.NoError(t, err)
	assert.Equal(t, streak.FreezeUsage{Limit: 2, Used: 1, Remaining: 1}, *usage)

	// Freezes on another habit draw from the same monthly quota.
	other := streak.HabitKey{OwnerID: testKey.OwnerID, HabitID: "habit_other"}
	require.NoError(t, e.store.CreateHabit(ctx, other, "Run"))
	_, usage, err = freezes.Freeze(ctx, other, calendar.MustParse("2025-03-11"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Remaining)

	_, _, err = freezes.Freeze(ctx, testKey, calendar.MustParse("2025-03-12"), "")
	assert.ErrorIs(t, err, ErrFreezeNotAllowed)

	usage, err = freezes.Usage(ctx, testKey.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, streak.FreezeUsage{Limit: 2, Used: 2, Remaining: 0}, *usage)
}

func TestFreeze_QuotaFollowsFreezeMonth(t *testing.T) {
	e := newTestEngine(t, "2025-03-01", func(c *config.StreakConfig) { c.BridgeFreezes = true })
	ctx := context.Background()
	require.NoError(t, e.store.SetPlan(ctx, testKey.OwnerID, store.PlanPro))
	freezes := NewFreezeService(e.streaks, NewPlanQuotaGate(e.store, 1))

	_, usage, err := freezes.Freeze(ctx, testKey, calendar.MustParse("2025-02-10"), "")
	require.NoError(t, err)
	assert.Equal(t, streak.FreezeUsage{Limit: 1, Used: 1, Remaining: 0}, *usage)

	// Backdated freezes cannot bridge past gaps beyond that month's quota.
	_, usage, err = freezes.Freeze(ctx, testKey, calendar.MustParse("2025-02-11"), "")
	assert.ErrorIs(t, err, ErrFreezeNotAllowed)
	assert.Equal(t, streak.FreezeUsage{Limit: 1, Used: 1, Remaining: 0}, *usage)
	assert.Len(t, e.store.Freezes(testKey), 1)

	// The current month still has its own allowance.
	usage, err = freezes.Usage(ctx, testKey.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, streak.FreezeUsage{Limit: 1, Used: 0, Remaining: 1}, *usage)

	_, usage, err = freezes.Freeze(ctx, testKey, calendar.MustParse("2025-03-01"), "")
	require.NoError(t, err)
	assert.Equal(t, streak.FreezeUsage{Limit: 1, Used: 1, Remaining: 0}, *usage)
}

func TestPlanForStatus(t *testing.T) {
	assert.Equal(t, store.PlanPro, PlanForStatus(stripe.SubscriptionStatusActive))
	assert.Equal(t, store.PlanPro, PlanForStatus(stripe.SubscriptionStatusTrialing))
	assert.Equal(t, store.PlanFree, PlanForStatus(stripe.SubscriptionStatusCanceled))
	assert.Equal(t, store.PlanFree, PlanForStatus(stripe.SubscriptionStatusPastDue))
}

func TestPlanService_ApplySubscription(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	plans := NewPlanService(mem)

	require.NoError(t, plans.ApplySubscription(ctx, "user_1", stripe.SubscriptionStatusActive))
	plan, err := mem.PlanFor(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, store.PlanPro, plan)

	require.NoError(t, plans.ApplySubscription(ctx, "user_1", stripe.SubscriptionStatusCanceled))
	plan, err = mem.PlanFor(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, store.PlanFree, plan)

	assert.Error(t, plans.ApplySubscription(ctx, "", stripe.SubscriptionStatusActive))
}
