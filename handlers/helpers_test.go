package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/config"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/middleware"
	"habitStreakAPI/services"
)

const testUser = "user_test"

var testKey = streak.HabitKey{OwnerID: testUser, HabitID: "habit_test"}

type fakeVerifier struct {
	payment *services.RestorePayment
	err     error
}

func (f *fakeVerifier) VerifyRestorePayment(ctx context.Context, key streak.HabitKey, paymentIntentID string) (*services.RestorePayment, error) {
	if paymentIntentID == "" {
		return nil, services.ErrPaymentKeyRequired
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.payment != nil {
		return f.payment, nil
	}
	return &services.RestorePayment{Key: paymentIntentID}, nil
}

type testServer struct {
	store    *store.MemoryStore
	streaks  *services.StreakService
	habits   *HabitHandler
	streakH  *StreakHandler
	freezes  *FreezeHandler
	admin    *AdminHandler
	webhooks *WebhookHandler
	verifier *fakeVerifier
}

func newTestServer(t *testing.T, today string) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	d := calendar.MustParse(today)
	clock := calendar.Fixed(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC))
	cfg := config.DefaultStreakConfig()

	streaks := services.NewStreakService(mem, cfg, clock)
	validator := services.NewValidator(mem, streaks)
	closer := services.NewStaleCloser(mem, cfg, clock)
	habits := services.NewHabitService(mem, streaks, nil)
	freezes := services.NewFreezeService(streaks, services.NewPlanQuotaGate(mem, cfg.FreezeProLimit))
	verifier := &fakeVerifier{}

	require.NoError(t, mem.CreateHabit(context.Background(), testKey, "Read"))

	return &testServer{
		store:    mem,
		streaks:  streaks,
		habits:   NewHabitHandler(habits, streaks),
		streakH:  NewStreakHandler(streaks, habits, validator, verifier),
		freezes:  NewFreezeHandler(freezes, streaks),
		admin:    NewAdminHandler(closer, validator, streaks),
		webhooks: NewWebhookHandler(habits, services.NewPlanService(mem), testWebhookSecret),
		verifier: verifier,
	}
}

func (s *testServer) logDates(t *testing.T, dates ...string) {
	t.Helper()
	for _, d := range dates {
		require.NoError(t, s.store.AddCompletion(context.Background(), testKey, calendar.MustParse(d)))
	}
	_, err := s.streaks.OnLogAdded(context.Background(), testKey, s.streaks.Today())
	require.NoError(t, err)
}

// authedRequest builds a request as the auth middleware would leave it.
func authedRequest(t *testing.T, method, target string, body interface{}, vars map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req = req.WithContext(context.WithValue(req.Context(), middleware.ClerkIDKey, testUser))
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func habitVars() map[string]string {
	return map[string]string{"habitId": testKey.HabitID}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func mustDate(s string) civil.Date {
	return calendar.MustParse(s)
}
