package helpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/config"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

// SetupTestDB connects to TEST_DATABASE_URL (or DATABASE_URL) and applies
// the schema. The test is skipped when neither is set.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL must be set for integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to ping test database: %v", err)
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// NewHabit creates a habit for a fresh owner and removes that owner's rows
// when the test ends.
func NewHabit(t *testing.T, pool *pgxpool.Pool) streak.HabitKey {
	t.Helper()
	key := streak.HabitKey{
		OwnerID: "user_test_" + uuid.NewString(),
		HabitID: "habit_test_" + uuid.NewString(),
	}
	if err := store.NewPostgresStore(pool).CreateHabit(context.Background(), key, "Integration"); err != nil {
		t.Fatalf("Failed to create habit: %v", err)
	}
	t.Cleanup(func() { CleanupOwner(t, pool, key.OwnerID) })
	return key
}

// CleanupOwner deletes every row that belongs to ownerID.
func CleanupOwner(t *testing.T, pool *pgxpool.Pool, ownerID string) {
	ctx := context.Background()
	for _, table := range []string{"streak_restores", "streak_freezes", "streaks", "habit_logs", "habits", "user_plans", "device_tokens"} {
		if _, err := pool.Exec(ctx, "DELETE FROM "+table+" WHERE owner_id = $1", ownerID); err != nil {
			t.Logf("Warning: failed to cleanup %s: %v", table, err)
		}
	}
}

// FixedClock returns a clock pinned to noon UTC on day.
func FixedClock(day string) *calendar.Clock {
	d := calendar.MustParse(day)
	return calendar.Fixed(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC))
}

func TestStreakConfig() config.StreakConfig {
	return config.DefaultStreakConfig()
}
