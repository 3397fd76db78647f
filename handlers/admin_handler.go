package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/services"
)

// AdminHandler exposes operator endpoints. It is mounted behind basic auth.
type AdminHandler struct {
	closer        *services.StaleCloser
	validator     *services.Validator
	streakService *services.StreakService
}

func NewAdminHandler(closer *services.StaleCloser, validator *services.Validator, streakService *services.StreakService) *AdminHandler {
	return &AdminHandler{
		closer:        closer,
		validator:     validator,
		streakService: streakService,
	}
}

// CloseStale runs one sweep. ?asOf=YYYY-MM-DD overrides today.
func (h *AdminHandler) CloseStale(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	asOf, err := parseDate(r.URL.Query().Get("asOf"), h.streakService.Today())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid asOf, expected YYYY-MM-DD")
		return
	}

	report, err := h.closer.CloseStaleStreaks(ctx, asOf)
	if err != nil {
		logger.Error("stale sweep failed", "as_of", asOf, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) ValidateHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	vars := mux.Vars(r)
	key := streak.HabitKey{OwnerID: vars["ownerId"], HabitID: vars["habitId"]}
	if key.OwnerID == "" || key.HabitID == "" {
		respondWithError(w, http.StatusBadRequest, "ownerId and habitId are required")
		return
	}

	report, err := h.validator.Validate(ctx, key, h.streakService.Today())
	if err != nil {
		var inconsistent *services.InconsistentStateError
		if errors.As(err, &inconsistent) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}
