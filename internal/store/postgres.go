package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/notification"
	"habitStreakAPI/internal/streak"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func listCompletionDates(ctx context.Context, q queryer, key streak.HabitKey) ([]civil.Date, error) {
	rows, err := q.Query(ctx, `
	SELECT DISTINCT log_date
	FROM habit_logs
	WHERE owner_id = $1 AND habit_id = $2
	ORDER BY log_date
	`, key.OwnerID, key.HabitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civil.Date
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, calendar.FromTime(d))
	}
	return out, rows.Err()
}

const intervalColumns = `id, owner_id, habit_id, start_date, end_date, longest, created_at, updated_at`

func scanInterval(row pgx.Row) (streak.Interval, error) {
	var (
		iv    streak.Interval
		start time.Time
		end   *time.Time
	)
	err := row.Scan(&iv.ID, &iv.OwnerID, &iv.HabitID, &start, &end, &iv.IsLongest, &iv.CreatedAt, &iv.UpdatedAt)
	if err != nil {
		return streak.Interval{}, err
	}
	iv.StartDate = calendar.FromTime(start)
	if end != nil {
		d := calendar.FromTime(*end)
		iv.EndDate = &d
	}
	return iv, nil
}

func listIntervals(ctx context.Context, q queryer, key streak.HabitKey) ([]streak.Interval, error) {
	rows, err := q.Query(ctx, `
	SELECT `+intervalColumns+`
	FROM streaks
	WHERE owner_id = $1 AND habit_id = $2
	ORDER BY start_date DESC
	`, key.OwnerID, key.HabitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []streak.Interval
	for rows.Next() {
		iv, err := scanInterval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func dateArg(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func (s *PostgresStore) ListCompletionDates(ctx context.Context, key streak.HabitKey) ([]civil.Date, error) {
	return listCompletionDates(ctx, s.db, key)
}

func hasCompletionOn(ctx context.Context, q queryer, key streak.HabitKey, date civil.Date) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
	SELECT EXISTS (
		SELECT 1 FROM habit_logs WHERE owner_id = $1 AND habit_id = $2 AND log_date = $3::date
	)`, key.OwnerID, key.HabitID, date.String()).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) HasCompletionOn(ctx context.Context, key streak.HabitKey, date civil.Date) (bool, error) {
	return hasCompletionOn(ctx, s.db, key, date)
}

func (s *PostgresStore) AddCompletion(ctx context.Context, key streak.HabitKey, date civil.Date) error {
	_, err := s.db.Exec(ctx, `
	INSERT INTO habit_logs (owner_id, habit_id, log_date)
	VALUES ($1, $2, $3::date)
	`, key.OwnerID, key.HabitID, date.String())
	if isUniqueViolation(err) {
		return ErrDuplicateLog
	}
	return err
}

func (s *PostgresStore) DeleteCompletion(ctx context.Context, key streak.HabitKey, date civil.Date) (bool, error) {
	tag, err := s.db.Exec(ctx, `
	DELETE FROM habit_logs WHERE owner_id = $1 AND habit_id = $2 AND log_date = $3::date
	`, key.OwnerID, key.HabitID, date.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreateHabit(ctx context.Context, key streak.HabitKey, name string) error {
	_, err := s.db.Exec(ctx, `
	INSERT INTO habits (id, owner_id, name) VALUES ($1, $2, $3)
	`, key.HabitID, key.OwnerID, name)
	if isUniqueViolation(err) {
		return ErrDuplicateHabit
	}
	return err
}

func (s *PostgresStore) HabitOwnedBy(ctx context.Context, key streak.HabitKey) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
	SELECT EXISTS (SELECT 1 FROM habits WHERE id = $1 AND owner_id = $2)
	`, key.HabitID, key.OwnerID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListIntervals(ctx context.Context, key streak.HabitKey) ([]streak.Interval, error) {
	return listIntervals(ctx, s.db, key)
}

func (s *PostgresStore) HabitsWithOpenIntervals(ctx context.Context) ([]streak.HabitKey, error) {
	rows, err := s.db.Query(ctx, `
	SELECT DISTINCT owner_id, habit_id FROM streaks WHERE end_date IS NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []streak.HabitKey
	for rows.Next() {
		var k streak.HabitKey
		if err := rows.Scan(&k.OwnerID, &k.HabitID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) CountFreezesBetween(ctx context.Context, ownerID string, from, to civil.Date) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
	SELECT COUNT(*) FROM streak_freezes
	WHERE owner_id = $1 AND freeze_date >= $2::date AND freeze_date <= $3::date
	`, ownerID, from.String(), to.String()).Scan(&n)
	return n, err
}

func (s *PostgresStore) PlanFor(ctx context.Context, ownerID string) (string, error) {
	var plan string
	err := s.db.QueryRow(ctx, `SELECT plan FROM user_plans WHERE owner_id = $1`, ownerID).Scan(&plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlanFree, nil
	}
	return plan, err
}

func (s *PostgresStore) SetPlan(ctx context.Context, ownerID, plan string) error {
	_, err := s.db.Exec(ctx, `
	INSERT INTO user_plans (owner_id, plan, updated_at) VALUES ($1, $2, NOW())
	ON CONFLICT (owner_id) DO UPDATE SET plan = EXCLUDED.plan, updated_at = NOW()
	`, ownerID, plan)
	return err
}

func (s *PostgresStore) SaveDeviceToken(ctx context.Context, ownerID string, token notification.DeviceToken) error {
	_, err := s.db.Exec(ctx, `
	INSERT INTO device_tokens (owner_id, token, platform) VALUES ($1, $2, $3)
	ON CONFLICT (owner_id, token) DO UPDATE SET platform = EXCLUDED.platform
	`, ownerID, token.Token, token.Platform)
	return err
}

func (s *PostgresStore) DeviceTokens(ctx context.Context, ownerID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT token, platform FROM device_tokens WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[notification.DeviceToken])
}

// WithinHabit runs fn in a transaction holding a transaction-scoped advisory
// lock on the habit. Any error rolls the whole unit back.
func (s *PostgresStore) WithinHabit(ctx context.Context, key streak.HabitKey, fn func(tx HabitTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "habit:"+key.String()); err != nil {
		return err
	}

	if err := fn(&pgHabitTx{tx: tx, key: key}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgHabitTx struct {
	tx  pgx.Tx
	key streak.HabitKey
}

func (t *pgHabitTx) Key() streak.HabitKey { return t.key }

func (t *pgHabitTx) ListCompletionDates(ctx context.Context) ([]civil.Date, error) {
	return listCompletionDates(ctx, t.tx, t.key)
}

func (t *pgHabitTx) LastCompletion(ctx context.Context) (civil.Date, bool, error) {
	var d time.Time
	err := t.tx.QueryRow(ctx, `
	SELECT log_date FROM habit_logs
	WHERE owner_id = $1 AND habit_id = $2
	ORDER BY log_date DESC
	LIMIT 1
	`, t.key.OwnerID, t.key.HabitID).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return civil.Date{}, false, nil
	}
	if err != nil {
		return civil.Date{}, false, err
	}
	return calendar.FromTime(d), true, nil
}

func (t *pgHabitTx) HasCompletionOn(ctx context.Context, date civil.Date) (bool, error) {
	return hasCompletionOn(ctx, t.tx, t.key, date)
}

// AddCompletion skips conflicting rows instead of raising a unique violation,
// which would abort the surrounding transaction.
func (t *pgHabitTx) AddCompletion(ctx context.Context, date civil.Date) error {
	tag, err := t.tx.Exec(ctx, `
	INSERT INTO habit_logs (owner_id, habit_id, log_date)
	VALUES ($1, $2, $3::date)
	ON CONFLICT (habit_id, log_date) DO NOTHING
	`, t.key.OwnerID, t.key.HabitID, date.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateLog
	}
	return nil
}

func (t *pgHabitTx) DeleteCompletion(ctx context.Context, date civil.Date) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
	DELETE FROM habit_logs
	WHERE owner_id = $1 AND habit_id = $2 AND log_date = $3::date
	`, t.key.OwnerID, t.key.HabitID, date.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgHabitTx) ListFreezeDates(ctx context.Context) ([]civil.Date, error) {
	rows, err := t.tx.Query(ctx, `
	SELECT DISTINCT freeze_date FROM streak_freezes
	WHERE owner_id = $1 AND habit_id = $2
	ORDER BY freeze_date
	`, t.key.OwnerID, t.key.HabitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civil.Date
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, calendar.FromTime(d))
	}
	return out, rows.Err()
}

func (t *pgHabitTx) ListIntervals(ctx context.Context) ([]streak.Interval, error) {
	return listIntervals(ctx, t.tx, t.key)
}

func (t *pgHabitTx) ReplaceIntervals(ctx context.Context, intervals []streak.Interval) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM streaks WHERE owner_id = $1 AND habit_id = $2`, t.key.OwnerID, t.key.HabitID); err != nil {
		return err
	}
	if len(intervals) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, iv := range intervals {
		batch.Queue(`
		INSERT INTO streaks (id, owner_id, habit_id, start_date, end_date, longest, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8)
		`, iv.ID, t.key.OwnerID, t.key.HabitID, iv.StartDate.String(), dateArg(iv.EndDate), iv.IsLongest, iv.CreatedAt, iv.UpdatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgHabitTx) UpdateInterval(ctx context.Context, iv streak.Interval) error {
	tag, err := t.tx.Exec(ctx, `
	UPDATE streaks SET end_date = $1::date, longest = $2, updated_at = $3
	WHERE id = $4 AND owner_id = $5 AND habit_id = $6
	`, dateArg(iv.EndDate), iv.IsLongest, iv.UpdatedAt, iv.ID, t.key.OwnerID, t.key.HabitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgHabitTx) DeleteIntervals(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := t.tx.Exec(ctx, `
	DELETE FROM streaks WHERE owner_id = $1 AND habit_id = $2 AND id = ANY($3::uuid[])
	`, t.key.OwnerID, t.key.HabitID, strIDs)
	return err
}

func (t *pgHabitTx) InsertFreeze(ctx context.Context, f streak.FreezeDay) error {
	_, err := t.tx.Exec(ctx, `
	INSERT INTO streak_freezes (id, owner_id, habit_id, freeze_date, reason, created_at)
	VALUES ($1, $2, $3, $4::date, $5, $6)
	`, f.ID, t.key.OwnerID, t.key.HabitID, f.Date.String(), f.Reason, f.CreatedAt)
	return err
}

func (t *pgHabitTx) LockPayment(ctx context.Context, paymentKey string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "payment:"+paymentKey)
	return err
}

const restoreColumns = `id, owner_id, habit_id, interval_id, lost_at, previous_end, restored_on, restored_at, payment_key, price_id, price_cents, currency`

func scanRestore(row pgx.Row) (*streak.RestoreRecord, error) {
	var r streak.RestoreRecord
	var lostAt, prevEnd, restoredOn time.Time
	err := row.Scan(&r.ID, &r.OwnerID, &r.HabitID, &r.IntervalID, &lostAt, &prevEnd, &restoredOn,
		&r.RestoredAt, &r.PaymentKey, &r.PriceID, &r.PriceCents, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.LostAt = calendar.FromTime(lostAt)
	r.PreviousEnd = calendar.FromTime(prevEnd)
	r.RestoredOn = calendar.FromTime(restoredOn)
	return &r, nil
}

func (t *pgHabitTx) FindRestoreByPayment(ctx context.Context, paymentKey string) (*streak.RestoreRecord, error) {
	return scanRestore(t.tx.QueryRow(ctx, `
	SELECT `+restoreColumns+` FROM streak_restores WHERE payment_key = $1
	`, paymentKey))
}

func (t *pgHabitTx) LatestRestore(ctx context.Context) (*streak.RestoreRecord, error) {
	return scanRestore(t.tx.QueryRow(ctx, `
	SELECT `+restoreColumns+` FROM streak_restores
	WHERE owner_id = $1 AND habit_id = $2
	ORDER BY restored_on DESC, restored_at DESC
	LIMIT 1
	`, t.key.OwnerID, t.key.HabitID))
}

func (t *pgHabitTx) InsertRestore(ctx context.Context, r streak.RestoreRecord) error {
	_, err := t.tx.Exec(ctx, `
	INSERT INTO streak_restores (`+restoreColumns+`)
	VALUES ($1, $2, $3, $4, $5::date, $6::date, $7::date, $8, $9, $10, $11, $12)
	`, r.ID, t.key.OwnerID, t.key.HabitID, r.IntervalID, r.LostAt.String(), r.PreviousEnd.String(), r.RestoredOn.String(),
		r.RestoredAt, r.PaymentKey, r.PriceID, r.PriceCents, r.Currency)
	if isUniqueViolation(err) {
		return ErrDuplicatePayment
	}
	return err
}
