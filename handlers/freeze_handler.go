package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/middleware"
	"habitStreakAPI/services"
)

type FreezeHandler struct {
	freezeService *services.FreezeService
	streakService *services.StreakService
}

func NewFreezeHandler(freezeService *services.FreezeService, streakService *services.StreakService) *FreezeHandler {
	return &FreezeHandler{
		freezeService: freezeService,
		streakService: streakService,
	}
}

type freezeResponse struct {
	Freeze *streak.FreezeDay   `json:"freeze"`
	Usage  *streak.FreezeUsage `json:"usage"`
}

type freezeDeniedResponse struct {
	Error           string `json:"error"`
	UpgradeRequired bool   `json:"upgradeRequired"`
	Limit           int    `json:"limit"`
	Used            int    `json:"used"`
}

func (h *FreezeHandler) CreateFreeze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req streak.FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.HabitID == "" {
		respondWithError(w, http.StatusBadRequest, "habitId is required")
		return
	}
	date, err := parseDate(req.Date, h.streakService.Today())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	key := streak.HabitKey{OwnerID: clerkID, HabitID: req.HabitID}
	if err := h.streakService.EnsureHabit(ctx, key); err != nil {
		if errors.Is(err, services.ErrHabitNotFound) {
			respondWithError(w, http.StatusNotFound, "Habit not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load habit")
		return
	}

	freeze, usage, err := h.freezeService.Freeze(ctx, key, date, req.Reason)
	switch {
	case errors.Is(err, services.ErrFreezeNotAllowed):
		respondWithJSON(w, http.StatusForbidden, freezeDeniedResponse{
			Error:           "No streak freezes left this month",
			UpgradeRequired: usage.Limit == 0,
			Limit:           usage.Limit,
			Used:            usage.Used,
		})
		return
	case errors.Is(err, services.ErrAlreadyFrozen):
		respondWithError(w, http.StatusConflict, "Day is already frozen")
		return
	case err != nil:
		logger.Error("freeze failed", "owner", clerkID, "habit", req.HabitID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to freeze day")
		return
	}

	respondWithJSON(w, http.StatusCreated, freezeResponse{Freeze: freeze, Usage: usage})
}

func (h *FreezeHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	usage, err := h.freezeService.Usage(ctx, clerkID)
	if err != nil {
		logger.Error("freeze usage failed", "owner", clerkID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get freeze usage")
		return
	}

	respondWithJSON(w, http.StatusOK, usage)
}
