package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitStreakAPI/internal/notification"
	"habitStreakAPI/internal/streak"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrDuplicateLog     = errors.New("store: completion already logged for this date")
	ErrDuplicatePayment = errors.New("store: payment key already recorded")
	ErrDuplicateHabit   = errors.New("store: habit already exists")
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Ledger is the completion ledger. Request-path writes go through HabitTx so
// they commit together with the re-derived intervals.
type Ledger interface {
	ListCompletionDates(ctx context.Context, key streak.HabitKey) ([]civil.Date, error)
	HasCompletionOn(ctx context.Context, key streak.HabitKey, date civil.Date) (bool, error)
	AddCompletion(ctx context.Context, key streak.HabitKey, date civil.Date) error
	DeleteCompletion(ctx context.Context, key streak.HabitKey, date civil.Date) (bool, error)
}

// HabitTx is a unit of work that holds the (owner, habit) lock. Nothing it
// writes is visible to other readers until the surrounding WithinHabit
// returns without error.
type HabitTx interface {
	Key() streak.HabitKey

	ListCompletionDates(ctx context.Context) ([]civil.Date, error)
	LastCompletion(ctx context.Context) (civil.Date, bool, error)
	HasCompletionOn(ctx context.Context, date civil.Date) (bool, error)
	AddCompletion(ctx context.Context, date civil.Date) error
	DeleteCompletion(ctx context.Context, date civil.Date) (bool, error)
	ListFreezeDates(ctx context.Context) ([]civil.Date, error)

	ListIntervals(ctx context.Context) ([]streak.Interval, error)
	ReplaceIntervals(ctx context.Context, intervals []streak.Interval) error
	UpdateInterval(ctx context.Context, iv streak.Interval) error
	DeleteIntervals(ctx context.Context, ids []uuid.UUID) error

	InsertFreeze(ctx context.Context, f streak.FreezeDay) error

	// LockPayment serializes restore attempts sharing one payment key across
	// processes.
	LockPayment(ctx context.Context, paymentKey string) error
	FindRestoreByPayment(ctx context.Context, paymentKey string) (*streak.RestoreRecord, error)
	LatestRestore(ctx context.Context) (*streak.RestoreRecord, error)
	InsertRestore(ctx context.Context, r streak.RestoreRecord) error
}

type Store interface {
	Ledger

	CreateHabit(ctx context.Context, key streak.HabitKey, name string) error
	HabitOwnedBy(ctx context.Context, key streak.HabitKey) (bool, error)
	ListIntervals(ctx context.Context, key streak.HabitKey) ([]streak.Interval, error)
	HabitsWithOpenIntervals(ctx context.Context) ([]streak.HabitKey, error)

	CountFreezesBetween(ctx context.Context, ownerID string, from, to civil.Date) (int, error)
	PlanFor(ctx context.Context, ownerID string) (string, error)
	SetPlan(ctx context.Context, ownerID, plan string) error
	DeviceTokens(ctx context.Context, ownerID string) ([]notification.DeviceToken, error)
	SaveDeviceToken(ctx context.Context, ownerID string, token notification.DeviceToken) error

	WithinHabit(ctx context.Context, key streak.HabitKey, fn func(tx HabitTx) error) error
}
