package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS habits (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_habits_owner ON habits(owner_id);

CREATE TABLE IF NOT EXISTS habit_logs (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id TEXT NOT NULL,
	habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
	log_date DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (habit_id, log_date)
);
CREATE INDEX IF NOT EXISTS idx_habit_logs_owner_habit_date ON habit_logs(owner_id, habit_id, log_date);

CREATE TABLE IF NOT EXISTS streaks (
	id UUID PRIMARY KEY,
	owner_id TEXT NOT NULL,
	habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
	start_date DATE NOT NULL,
	end_date DATE,
	longest BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_streaks_owner_habit_end ON streaks(owner_id, habit_id, end_date);
CREATE INDEX IF NOT EXISTS idx_streaks_open ON streaks(owner_id, habit_id) WHERE end_date IS NULL;

CREATE TABLE IF NOT EXISTS streak_freezes (
	id UUID PRIMARY KEY,
	owner_id TEXT NOT NULL,
	habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
	freeze_date DATE NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_streak_freezes_owner_date ON streak_freezes(owner_id, freeze_date);

CREATE TABLE IF NOT EXISTS streak_restores (
	id UUID PRIMARY KEY,
	owner_id TEXT NOT NULL,
	habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
	interval_id UUID NOT NULL,
	lost_at DATE NOT NULL,
	previous_end DATE NOT NULL,
	restored_on DATE NOT NULL,
	restored_at TIMESTAMPTZ NOT NULL,
	payment_key TEXT NOT NULL UNIQUE,
	price_id TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL DEFAULT 99,
	currency TEXT NOT NULL DEFAULT 'USD'
);
CREATE INDEX IF NOT EXISTS idx_streak_restores_owner_habit ON streak_restores(owner_id, habit_id, restored_on);

CREATE TABLE IF NOT EXISTS user_plans (
	owner_id TEXT PRIMARY KEY,
	plan TEXT NOT NULL DEFAULT 'free',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS device_tokens (
	owner_id TEXT NOT NULL,
	token TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT 'android',
	PRIMARY KEY (owner_id, token)
);
`

// Migrate creates any missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
