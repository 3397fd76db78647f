package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/middleware"
	"habitStreakAPI/services"
)

type HabitHandler struct {
	habitService  *services.HabitService
	streakService *services.StreakService
}

func NewHabitHandler(habitService *services.HabitService, streakService *services.StreakService) *HabitHandler {
	return &HabitHandler{
		habitService:  habitService,
		streakService: streakService,
	}
}

func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req services.CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key, err := h.habitService.CreateHabit(ctx, clerkID, &req)
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrDuplicateHabit):
		respondWithError(w, http.StatusConflict, "Habit already exists")
		return
	case err != nil:
		logger.Error("create habit failed", "owner", clerkID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create habit")
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"habitId": key.HabitID, "name": req.Name})
}

// LogHabit records a completion. The body is optional and defaults to today.
func (h *HabitHandler) LogHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key, ok := habitKey(w, r)
	if !ok {
		return
	}

	var req streak.LogRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	date, err := parseDate(req.Date, h.streakService.Today())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	res, err := h.habitService.LogCompletion(ctx, key, date)
	if err != nil {
		respondWithMutationError(w, key, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, res)
}

func (h *HabitHandler) UndoToday(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key, ok := habitKey(w, r)
	if !ok {
		return
	}

	res, err := h.habitService.UndoToday(ctx, key)
	if err != nil {
		respondWithMutationError(w, key, err)
		return
	}

	respondWithJSON(w, http.StatusOK, res)
}

func (h *HabitHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req services.DeviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.habitService.RegisterDevice(ctx, clerkID, &req); err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("register device failed", "owner", clerkID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to register device")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered"})
}

func respondWithMutationError(w http.ResponseWriter, key streak.HabitKey, err error) {
	switch {
	case errors.Is(err, services.ErrHabitNotFound):
		respondWithError(w, http.StatusNotFound, "Habit not found")
	case errors.Is(err, services.ErrNoLogToday):
		respondWithError(w, http.StatusNotFound, "No log found for today")
	case errors.Is(err, services.ErrAlreadyLogged):
		respondWithError(w, http.StatusConflict, "Habit already logged for this date")
	case errors.Is(err, services.ErrFutureDate):
		respondWithError(w, http.StatusBadRequest, "Cannot log a future date")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		logger.Error("streak mutation failed", "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update streaks")
	}
}
