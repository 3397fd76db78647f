package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/services"
)

type StreakHandler struct {
	streakService *services.StreakService
	habitService  *services.HabitService
	validator     *services.Validator
	verifier      services.PaymentVerifier
}

func NewStreakHandler(streakService *services.StreakService, habitService *services.HabitService, validator *services.Validator, verifier services.PaymentVerifier) *StreakHandler {
	return &StreakHandler{
		streakService: streakService,
		habitService:  habitService,
		validator:     validator,
		verifier:      verifier,
	}
}

func (h *StreakHandler) ListStreaks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key, ok := h.ownedHabit(ctx, w, r)
	if !ok {
		return
	}

	intervals, err := h.streakService.Intervals(ctx, key)
	if err != nil {
		logger.Error("list streaks failed", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get streaks")
		return
	}
	if intervals == nil {
		intervals = []streak.Interval{}
	}

	respondWithJSON(w, http.StatusOK, intervals)
}

func (h *StreakHandler) GetCurrentStreak(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key, ok := h.ownedHabit(ctx, w, r)
	if !ok {
		return
	}

	current, err := h.streakService.Current(ctx, key, h.streakService.Today())
	if err != nil {
		logger.Error("current streak failed", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get current streak")
		return
	}
	if current == nil {
		respondWithError(w, http.StatusNotFound, "No active streak")
		return
	}

	respondWithJSON(w, http.StatusOK, current)
}

func (h *StreakHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key, ok := h.ownedHabit(ctx, w, r)
	if !ok {
		return
	}

	stats, err := h.streakService.Stats(ctx, key, h.streakService.Today())
	if err != nil {
		logger.Error("streak stats failed", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get streak stats")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// Validate checks the stored intervals against the ledger and repairs them.
func (h *StreakHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	key, ok := h.ownedHabit(ctx, w, r)
	if !ok {
		return
	}

	report, err := h.validator.Validate(ctx, key, h.streakService.Today())
	if err != nil {
		var inconsistent *services.InconsistentStateError
		if errors.As(err, &inconsistent) {
			respondWithError(w, http.StatusConflict, "Streak data could not be repaired, try again later")
			return
		}
		logger.Error("validate failed", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to validate streaks")
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// Restore applies a paid restore once the payment intent is confirmed with
// Stripe. Replaying the same payment returns the original record.
func (h *StreakHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	key, ok := habitKey(w, r)
	if !ok {
		return
	}

	var req streak.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.verifier.VerifyRestorePayment(ctx, key, req.PaymentIntentID)
	switch {
	case errors.Is(err, services.ErrPaymentKeyRequired):
		respondWithError(w, http.StatusBadRequest, "paymentIntentId is required")
		return
	case errors.Is(err, services.ErrPaymentNotVerified):
		respondWithError(w, http.StatusPaymentRequired, err.Error())
		return
	case err != nil:
		logger.Error("payment verification failed", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		respondWithError(w, http.StatusBadGateway, "Could not verify payment")
		return
	}

	res, err := h.habitService.Restore(ctx, key, *payment)
	switch {
	case errors.Is(err, services.ErrHabitNotFound):
		respondWithError(w, http.StatusNotFound, "Habit not found")
		return
	case errors.Is(err, services.ErrNoStreakToRestore):
		respondWithError(w, http.StatusNotFound, "No streak to restore")
		return
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, "Failed to restore streak")
		return
	}

	respondWithJSON(w, http.StatusOK, streak.RestoreResponse{
		Restored:  !res.Duplicate,
		Duplicate: res.Duplicate,
		Record:    res.Record,
		Streak:    res.Current,
	})
}

func (h *StreakHandler) ownedHabit(ctx context.Context, w http.ResponseWriter, r *http.Request) (streak.HabitKey, bool) {
	key, ok := habitKey(w, r)
	if !ok {
		return key, false
	}
	if err := h.streakService.EnsureHabit(ctx, key); err != nil {
		if errors.Is(err, services.ErrHabitNotFound) {
			respondWithError(w, http.StatusNotFound, "Habit not found")
			return key, false
		}
		logger.Error("habit lookup failed", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load habit")
		return key, false
	}
	return key, true
}
