package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/notification"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

// StreakNotifier is the part of MilestoneNotifier the request path uses.
type StreakNotifier interface {
	NotifyStreak(key streak.HabitKey, days int) bool
	NotifyRestored(key streak.HabitKey, days int)
}

// HabitService is the request path for habits. Ledger writes commit in the
// same unit of work as the streak re-derivation.
type HabitService struct {
	store    store.Store
	streaks  *StreakService
	notifier StreakNotifier
}

func NewHabitService(st store.Store, streaks *StreakService, notifier StreakNotifier) *HabitService {
	return &HabitService{store: st, streaks: streaks, notifier: notifier}
}

type CreateHabitRequest struct {
	HabitID string `json:"habitId"`
	Name    string `json:"name"`
}

type DeviceTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (s *HabitService) CreateHabit(ctx context.Context, ownerID string, req *CreateHabitRequest) (streak.HabitKey, error) {
	key := streak.HabitKey{OwnerID: ownerID, HabitID: strings.TrimSpace(req.HabitID)}
	if key.HabitID == "" {
		key.HabitID = uuid.NewString()
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return key, fmt.Errorf("%w: habit name is required", ErrInvalidRequest)
	}

	if err := s.store.CreateHabit(ctx, key, name); err != nil {
		return key, err
	}
	logger.Info("habit created", "owner", ownerID, "habit", key.HabitID)
	return key, nil
}

// LogCompletion records a completion for date and re-derives the streaks as
// of today. Dates after today are rejected. On failure the ledger is left
// unchanged so the call can be retried.
func (s *HabitService) LogCompletion(ctx context.Context, key streak.HabitKey, date civil.Date) (*streak.LogResponse, error) {
	today := s.streaks.Today()
	if date.After(today) {
		return nil, fmt.Errorf("%w: %s", ErrFutureDate, date)
	}
	if err := s.streaks.EnsureHabit(ctx, key); err != nil {
		return nil, err
	}

	res, err := s.streaks.RecordCompletion(ctx, key, date, today)
	if errors.Is(err, store.ErrDuplicateLog) {
		return nil, ErrAlreadyLogged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to log completion: %w", err)
	}

	out := &streak.LogResponse{
		Date:           date,
		Streak:         res.Current,
		UpdatedStreaks: len(res.Intervals),
	}
	if res.Current != nil && s.notifier != nil {
		out.Milestone = s.notifier.NotifyStreak(key, res.Current.StreakDays)
	}
	return out, nil
}

// UndoToday removes today's completion and re-derives with the undo
// tolerance.
func (s *HabitService) UndoToday(ctx context.Context, key streak.HabitKey) (*streak.MutationResult, error) {
	if err := s.streaks.EnsureHabit(ctx, key); err != nil {
		return nil, err
	}

	today := s.streaks.Today()
	res, err := s.streaks.RemoveCompletion(ctx, key, today, today)
	if errors.Is(err, ErrNoLogToday) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to undo completion: %w", err)
	}
	return res, nil
}

// Restore applies a verified payment and pushes a confirmation when the
// streak came back.
func (s *HabitService) Restore(ctx context.Context, key streak.HabitKey, payment RestorePayment) (*RestoreResult, error) {
	if err := s.streaks.EnsureHabit(ctx, key); err != nil {
		return nil, err
	}
	res, err := s.streaks.OnRestoreApplied(ctx, key, payment, s.streaks.Today())
	if err != nil {
		return nil, err
	}
	if !res.Duplicate && res.Current != nil && s.notifier != nil {
		s.notifier.NotifyRestored(key, res.Current.StreakDays)
	}
	return res, nil
}

func (s *HabitService) RegisterDevice(ctx context.Context, ownerID string, req *DeviceTokenRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return fmt.Errorf("%w: device token is required", ErrInvalidRequest)
	}
	platform := strings.ToLower(req.Platform)
	if platform != "ios" && platform != "android" {
		platform = "android"
	}
	return s.store.SaveDeviceToken(ctx, ownerID, notification.DeviceToken{Token: token, Platform: platform})
}
