package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"habitStreakAPI/internal/streak"
)

type Config struct {
	DatabaseURL string
	Port        string

	ClerkSecretKey      string
	StripeSecretKey     string
	StripeWebhookSecret string

	FCMCredentialsJSON string
	FCMCredentialsFile string

	MetricsUser string
	MetricsPass string

	LogLevel string
	LogFile  string

	Streak StreakConfig
}

// StreakConfig holds the knobs of the streak engine and its scheduler.
type StreakConfig struct {
	Location           *time.Location
	MissedDayThreshold int
	UndoGapTolerance   int
	LogMode            streak.Mode
	BridgeFreezes      bool
	SweepInterval      time.Duration
	SweepConcurrency   int
	FreezeProLimit     int
}

func DefaultStreakConfig() StreakConfig {
	return StreakConfig{
		Location:           time.UTC,
		MissedDayThreshold: 2,
		UndoGapTolerance:   streak.DefaultUndoGapTolerance,
		LogMode:            streak.Strict,
		SweepConcurrency:   4,
		FreezeProLimit:     2,
	}
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		DatabaseURL:         getenv("DATABASE_URL"),
		Port:                r.str("PORT", "3333"),
		ClerkSecretKey:      getenv("CLERK_SECRET_KEY"),
		StripeSecretKey:     getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: getenv("STRIPE_WEBHOOK_SECRET"),
		FCMCredentialsJSON:  getenv("FCM_SERVICE_ACCOUNT_JSON"),
		FCMCredentialsFile:  r.str("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		MetricsUser:         getenv("METRICS_USER"),
		MetricsPass:         getenv("METRICS_PASS"),
		LogLevel:            r.str("LOG_LEVEL", "info"),
		LogFile:             getenv("LOG_FILE"),
		Streak:              DefaultStreakConfig(),
	}

	s := &cfg.Streak
	if tz := getenv("STREAK_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid STREAK_TIMEZONE %q: %w", tz, err)
		}
		s.Location = loc
	}
	s.MissedDayThreshold = r.positiveInt("STREAK_MISSED_DAY_THRESHOLD", s.MissedDayThreshold)
	s.UndoGapTolerance = r.positiveInt("STREAK_UNDO_GAP_TOLERANCE", s.UndoGapTolerance)
	s.SweepConcurrency = r.positiveInt("STREAK_SWEEP_CONCURRENCY", s.SweepConcurrency)
	s.FreezeProLimit = r.nonNegativeInt("FREEZE_PRO_MONTHLY_LIMIT", s.FreezeProLimit)
	s.BridgeFreezes = r.boolean("STREAK_BRIDGE_FREEZES", s.BridgeFreezes)
	s.SweepInterval = r.duration("STREAK_SWEEP_INTERVAL", s.SweepInterval)

	if mode := getenv("STREAK_LOG_MODE"); mode != "" {
		m, err := streak.ParseMode(strings.ToLower(mode))
		if err != nil {
			r.fail("STREAK_LOG_MODE", err)
		} else if m == streak.UndoBiased {
			r.fail("STREAK_LOG_MODE", fmt.Errorf("undo mode is reserved for undo"))
		} else {
			s.LogMode = m
		}
	}

	if err := r.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []string
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
}

func (r *reader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(r.errs, "; "))
}

func (r *reader) str(key, def string) string {
	if v := r.getenv(key); v != "" {
		return v
	}
	return def
}

func (r *reader) positiveInt(key string, def int) int {
	n := r.nonNegativeInt(key, def)
	if n == 0 {
		r.fail(key, fmt.Errorf("must be greater than zero"))
		return def
	}
	return n
}

func (r *reader) nonNegativeInt(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		r.fail(key, fmt.Errorf("expected a non-negative integer, got %q", v))
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, fmt.Errorf("expected a boolean, got %q", v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		r.fail(key, fmt.Errorf("expected a duration like 24h, got %q", v))
		return def
	}
	return d
}
