package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/config"
	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/notification"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/services"
)

var errPaymentsDisabled = errors.New("payments are not configured")

type paymentsDisabled struct{}

func (paymentsDisabled) VerifyRestorePayment(ctx context.Context, key streak.HabitKey, paymentIntentID string) (*services.RestorePayment, error) {
	return nil, errPaymentsDisabled
}

// app is the wired service graph shared by every subcommand.
type app struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	store store.Store
	clock *calendar.Clock

	streaks   *services.StreakService
	closer    *services.StaleCloser
	validator *services.Validator
	freezes   *services.FreezeService
	habits    *services.HabitService
	plans     *services.PlanService
	notifier  *services.MilestoneNotifier
	verifier  services.PaymentVerifier
}

func newApp(ctx context.Context, cfg *config.Config, memory bool) (*app, error) {
	a := &app{cfg: cfg, clock: calendar.NewClock(cfg.Streak.Location)}

	if memory {
		logger.Warn("using in-memory store, data is lost on exit")
		a.store = store.NewMemoryStore()
	} else {
		pool, err := openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.store = store.NewPostgresStore(pool)
	}

	a.streaks = services.NewStreakService(a.store, cfg.Streak, a.clock)
	a.closer = services.NewStaleCloser(a.store, cfg.Streak, a.clock)
	a.validator = services.NewValidator(a.store, a.streaks)
	a.freezes = services.NewFreezeService(a.streaks, services.NewPlanQuotaGate(a.store, cfg.Streak.FreezeProLimit))
	a.plans = services.NewPlanService(a.store)
	a.habits = services.NewHabitService(a.store, a.streaks, nil)

	a.verifier = paymentsDisabled{}
	if cfg.StripeSecretKey != "" {
		a.verifier = services.NewStripeVerifier(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, restore payments are disabled")
	}
	return a, nil
}

// startNotifier wires FCM when credentials are available. Without them
// milestones are only logged.
func (a *app) startNotifier(ctx context.Context) {
	var provider services.PushProvider
	fcm, err := notification.NewFCMService(ctx, a.cfg.FCMCredentialsJSON, a.cfg.FCMCredentialsFile)
	if err != nil {
		logger.Warn("could not initialize FCM", "error", err)
	} else {
		provider = fcm
		logger.Info("FCM push provider initialized")
	}
	a.notifier = services.NewMilestoneNotifier(a.store, provider, 4)
	a.habits = services.NewHabitService(a.store, a.streaks, a.notifier)
}

func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Stop()
	}
	if a.pool != nil {
		logger.Info("closing database connection pool")
		a.pool.Close()
	}
}

func openPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to database")
	return pool, nil
}

// ping reports storage health for /health.
func (a *app) ping(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}
