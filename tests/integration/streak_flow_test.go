package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/services"
	"habitStreakAPI/tests/helpers"
)

func spans(ivs []streak.Interval) []string {
	out := make([]string, 0, len(ivs))
	for i := len(ivs) - 1; i >= 0; i-- {
		s := ivs[i].StartDate.String() + ".."
		if ivs[i].EndDate == nil {
			s += "open"
		} else {
			s += ivs[i].EndDate.String()
		}
		out = append(out, s)
	}
	return out
}

func TestPostgres_LogAndUndoFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	key := helpers.NewHabit(t, pool)
	st := store.NewPostgresStore(pool)
	clock := helpers.FixedClock("2025-01-05")
	streaks := services.NewStreakService(st, helpers.TestStreakConfig(), clock)
	habits := services.NewHabitService(st, streaks, nil)
	ctx := context.Background()

	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-05"} {
		_, err := habits.LogCompletion(ctx, key, calendar.MustParse(d))
		require.NoError(t, err)
	}

	ivs, err := st.ListIntervals(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01..2025-01-02", "2025-01-05..open"}, spans(ivs))

	_, err = habits.LogCompletion(ctx, key, calendar.MustParse("2025-01-05"))
	assert.ErrorIs(t, err, services.ErrAlreadyLogged)

	_, err = habits.UndoToday(ctx, key)
	require.NoError(t, err)
	ivs, err = st.ListIntervals(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01..open"}, spans(ivs))
}

func TestPostgres_ConcurrentLogsConverge(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	key := helpers.NewHabit(t, pool)
	st := store.NewPostgresStore(pool)
	streaks := services.NewStreakService(st, helpers.TestStreakConfig(), helpers.FixedClock("2025-01-08"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			d := calendar.MustParse("2025-01-01").AddDays(day - 1)
			if assert.NoError(t, st.AddCompletion(ctx, key, d)) {
				_, err := streaks.OnLogAdded(ctx, key, calendar.MustParse("2025-01-08"))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	ivs, err := st.ListIntervals(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01..open"}, spans(ivs))
	assert.True(t, ivs[0].IsLongest)
}

func TestPostgres_FailedUnitRollsBack(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	key := helpers.NewHabit(t, pool)
	st := store.NewPostgresStore(pool)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithinHabit(ctx, key, func(tx store.HabitTx) error {
		iv := streak.NewIntervals(key, []streak.Span{{Start: calendar.MustParse("2025-01-01")}}, helpers.FixedClock("2025-01-01").Timestamp())
		if err := tx.ReplaceIntervals(ctx, iv); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ivs, err := st.ListIntervals(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, ivs)
}

// failOnceStore runs the first unit of work and then fails it before commit.
type failOnceStore struct {
	*store.PostgresStore
	err  error
	once sync.Once
}

func (f *failOnceStore) WithinHabit(ctx context.Context, key streak.HabitKey, fn func(tx store.HabitTx) error) error {
	fail := false
	f.once.Do(func() { fail = true })
	return f.PostgresStore.WithinHabit(ctx, key, func(tx store.HabitTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if fail {
			return f.err
		}
		return nil
	})
}

func TestPostgres_FailedLogLeavesLedgerUnchanged(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	key := helpers.NewHabit(t, pool)
	boom := errors.New("conn reset")
	st := &failOnceStore{PostgresStore: store.NewPostgresStore(pool), err: boom}
	streaks := services.NewStreakService(st, helpers.TestStreakConfig(), helpers.FixedClock("2025-01-03"))
	habits := services.NewHabitService(st, streaks, nil)
	ctx := context.Background()
	day := calendar.MustParse("2025-01-03")

	_, err := habits.LogCompletion(ctx, key, day)
	require.ErrorIs(t, err, boom)

	logged, err := st.HasCompletionOn(ctx, key, day)
	require.NoError(t, err)
	assert.False(t, logged)

	_, err = habits.LogCompletion(ctx, key, day)
	require.NoError(t, err)

	ivs, err := st.ListIntervals(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-03..open"}, spans(ivs))

	_, err = habits.LogCompletion(ctx, key, day)
	assert.ErrorIs(t, err, services.ErrAlreadyLogged)
}

func TestPostgres_RestoreIsIdempotentUnderConcurrency(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	key := helpers.NewHabit(t, pool)
	st := store.NewPostgresStore(pool)
	streaks := services.NewStreakService(st, helpers.TestStreakConfig(), helpers.FixedClock("2025-01-10"))
	ctx := context.Background()

	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		require.NoError(t, st.AddCompletion(ctx, key, calendar.MustParse(d)))
	}
	_, err := streaks.OnLogAdded(ctx, key, calendar.MustParse("2025-01-10"))
	require.NoError(t, err)

	payment := services.RestorePayment{Key: "pi_" + key.HabitID}
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		applied    int
		duplicates int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := streaks.OnRestoreApplied(ctx, key, payment, calendar.MustParse("2025-01-10"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Duplicate {
				duplicates++
			} else {
				applied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 5, duplicates)

	ivs, err := st.ListIntervals(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01..open"}, spans(ivs))
}

func TestPostgres_StaleCloseAndValidate(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	key := helpers.NewHabit(t, pool)
	st := store.NewPostgresStore(pool)
	cfg := helpers.TestStreakConfig()
	clock := helpers.FixedClock("2025-01-10")
	streaks := services.NewStreakService(st, cfg, clock)
	closer := services.NewStaleCloser(st, cfg, clock)
	validator := services.NewValidator(st, streaks)
	ctx := context.Background()

	// Logged while the run was still current.
	require.NoError(t, st.AddCompletion(ctx, key, calendar.MustParse("2025-01-01")))
	require.NoError(t, st.AddCompletion(ctx, key, calendar.MustParse("2025-01-02")))
	_, err := streaks.OnLogAdded(ctx, key, calendar.MustParse("2025-01-03"))
	require.NoError(t, err)

	closed, err := closer.CloseStale(ctx, key, calendar.MustParse("2025-01-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	closed, err = closer.CloseStale(ctx, key, calendar.MustParse("2025-01-10"))
	require.NoError(t, err)
	assert.Zero(t, closed)

	ivs, err := st.ListIntervals(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01..2025-01-02"}, spans(ivs))

	report, err := validator.Validate(ctx, key, calendar.MustParse("2025-01-10"))
	require.NoError(t, err)
	assert.False(t, report.HasIssues, "%+v", report.Issues)
}
