package handlers

import (
	"encoding/json"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/middleware"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// habitKey builds the key from the authenticated user and the {habitId}
// route variable.
func habitKey(w http.ResponseWriter, r *http.Request) (streak.HabitKey, bool) {
	clerkID, ok := middleware.GetClerkID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return streak.HabitKey{}, false
	}
	habitID := mux.Vars(r)["habitId"]
	if habitID == "" {
		respondWithError(w, http.StatusBadRequest, "habitId is required")
		return streak.HabitKey{}, false
	}
	return streak.HabitKey{OwnerID: clerkID, HabitID: habitID}, true
}

// parseDate returns fallback for an empty value.
func parseDate(value string, fallback civil.Date) (civil.Date, error) {
	if value == "" {
		return fallback, nil
	}
	return calendar.Parse(value)
}
