package services

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/config"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

var testKey = streak.HabitKey{OwnerID: "user_test", HabitID: "habit_test"}

type testEngine struct {
	store     *store.MemoryStore
	streaks   *StreakService
	closer    *StaleCloser
	validator *Validator
}

func newTestEngine(t *testing.T, today string, tweaks ...func(*config.StreakConfig)) *testEngine {
	t.Helper()
	return newTestEngineWith(t, store.NewMemoryStore(), today, tweaks...)
}

func newTestEngineWith(t *testing.T, mem *store.MemoryStore, today string, tweaks ...func(*config.StreakConfig)) *testEngine {
	t.Helper()
	cfg := config.DefaultStreakConfig()
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	d := calendar.MustParse(today)
	clock := calendar.Fixed(time.Date(d.Year, d.Month, d.Day, 9, 30, 0, 0, time.UTC))

	require.NoError(t, mem.CreateHabit(context.Background(), testKey, "Read"))
	streaks := NewStreakService(mem, cfg, clock)
	return &testEngine{
		store:     mem,
		streaks:   streaks,
		closer:    NewStaleCloser(mem, cfg, clock),
		validator: NewValidator(mem, streaks),
	}
}

func (e *testEngine) log(t *testing.T, dates ...string) {
	t.Helper()
	for _, d := range dates {
		require.NoError(t, e.store.AddCompletion(context.Background(), testKey, calendar.MustParse(d)))
	}
}

func (e *testEngine) unlog(t *testing.T, d string) {
	t.Helper()
	removed, err := e.store.DeleteCompletion(context.Background(), testKey, calendar.MustParse(d))
	require.NoError(t, err)
	require.True(t, removed)
}

func (e *testEngine) stored(t *testing.T) []streak.Interval {
	t.Helper()
	ivs, err := e.store.ListIntervals(context.Background(), testKey)
	require.NoError(t, err)
	return ivs
}

// render formats intervals oldest first as "start..end" or "start..open",
// with a trailing "*" on the longest one.
func render(ivs []streak.Interval) []string {
	sorted := append([]streak.Interval(nil), ivs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDate.Before(sorted[j].StartDate) })

	out := make([]string, 0, len(sorted))
	for _, iv := range sorted {
		s := iv.StartDate.String() + ".."
		if iv.EndDate == nil {
			s += "open"
		} else {
			s += iv.EndDate.String()
		}
		if iv.IsLongest {
			s += "*"
		}
		out = append(out, s)
	}
	return out
}

func renderSpans(spans []streak.Span) []string {
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		r := s.Start.String() + ".."
		if s.End == nil {
			r += "open"
		} else {
			r += s.End.String()
		}
		out = append(out, r)
	}
	return out
}

// withoutLongest drops the longest marker so a stored set can be compared
// with a bare derivation.
func withoutLongest(rendered []string) []string {
	out := make([]string, len(rendered))
	for i, r := range rendered {
		if n := len(r); n > 0 && r[n-1] == '*' {
			r = r[:n-1]
		}
		out[i] = r
	}
	return out
}

func closedInterval(start, end string) streak.Interval {
	e := calendar.MustParse(end)
	return streak.Interval{
		ID:        uuid.New(),
		OwnerID:   testKey.OwnerID,
		HabitID:   testKey.HabitID,
		StartDate: calendar.MustParse(start),
		EndDate:   &e,
	}
}

func openInterval(start string) streak.Interval {
	return streak.Interval{
		ID:        uuid.New(),
		OwnerID:   testKey.OwnerID,
		HabitID:   testKey.HabitID,
		StartDate: calendar.MustParse(start),
	}
}

// faultyStore fails WithinHabit for chosen habits, or for the first n calls.
// Calls counted by failAfterWork run fn first and then fail, like a commit
// that never lands.
type faultyStore struct {
	*store.MemoryStore
	err           error
	badHabits     map[string]bool
	failFirst     int32
	failAfterWork int32
	calls         atomic.Int32
}

func (f *faultyStore) WithinHabit(ctx context.Context, key streak.HabitKey, fn func(tx store.HabitTx) error) error {
	n := f.calls.Add(1)
	if f.badHabits[key.HabitID] || n <= f.failFirst {
		return f.err
	}
	if n <= f.failFirst+f.failAfterWork {
		return f.MemoryStore.WithinHabit(ctx, key, func(tx store.HabitTx) error {
			if err := fn(tx); err != nil {
				return err
			}
			return f.err
		})
	}
	return f.MemoryStore.WithinHabit(ctx, key, fn)
}
