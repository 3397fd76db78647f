package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"habitStreakAPI/handlers"
	"habitStreakAPI/middleware"
)

type routerOptions struct {
	auth     func(http.Handler) http.Handler
	limiter  *middleware.RateLimiter
	gatherer prometheus.Gatherer
}

func newRouter(a *app, opts routerOptions) *mux.Router {
	habitHandler := handlers.NewHabitHandler(a.habits, a.streaks)
	streakHandler := handlers.NewStreakHandler(a.streaks, a.habits, a.validator, a.verifier)
	freezeHandler := handlers.NewFreezeHandler(a.freezes, a.streaks)
	webhookHandler := handlers.NewWebhookHandler(a.habits, a.plans, a.cfg.StripeWebhookSecret)
	adminHandler := handlers.NewAdminHandler(a.closer, a.validator, a.streaks)
	operatorAuth := middleware.BasicAuth(a.cfg.MetricsUser, a.cfg.MetricsPass)

	r := mux.NewRouter()
	r.Use(middleware.MonitorMiddleware)
	if opts.limiter != nil {
		r.Use(opts.limiter.Middleware)
	}

	r.Handle("/metrics", operatorAuth(promhttp.HandlerFor(opts.gatherer, promhttp.HandlerOpts{}))).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := a.ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "habit-streaks"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/stripe", webhookHandler.HandleStripeWebhook).Methods("POST")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(operatorAuth)
	admin.HandleFunc("/streaks/close-stale", adminHandler.CloseStale).Methods("POST")
	admin.HandleFunc("/habits/{ownerId}/{habitId}/validate", adminHandler.ValidateHabit).Methods("POST")

	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(opts.auth)

	protected.HandleFunc("/habits", habitHandler.CreateHabit).Methods("POST")
	protected.HandleFunc("/habits/{habitId}/logs", habitHandler.LogHabit).Methods("POST")
	protected.HandleFunc("/habits/{habitId}/logs/today", habitHandler.UndoToday).Methods("DELETE")
	protected.HandleFunc("/devices", habitHandler.RegisterDevice).Methods("POST")

	protected.HandleFunc("/habits/{habitId}/streaks", streakHandler.ListStreaks).Methods("GET")
	protected.HandleFunc("/habits/{habitId}/streaks/current", streakHandler.GetCurrentStreak).Methods("GET")
	protected.HandleFunc("/habits/{habitId}/streaks/stats", streakHandler.GetStats).Methods("GET")
	protected.HandleFunc("/habits/{habitId}/streaks/validate", streakHandler.Validate).Methods("POST")
	protected.HandleFunc("/habits/{habitId}/streaks/restore", streakHandler.Restore).Methods("POST")

	protected.HandleFunc("/freezes", freezeHandler.CreateFreeze).Methods("POST")
	protected.HandleFunc("/freezes/usage", freezeHandler.GetUsage).Methods("GET")

	return r
}
