package services

import "github.com/prometheus/client_golang/prometheus"

var (
	streakMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_mutations_total",
			Help: "Streak engine mutations by operation and result",
		},
		[]string{"op", "result"},
	)
	staleClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_stale_closed_total",
			Help: "Open streaks closed by the stale sweep",
		},
	)
	validatorIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_validator_issues_total",
			Help: "Issues found by the consistency validator",
		},
		[]string{"kind"},
	)
	streakRestores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_restores_total",
			Help: "Restore attempts by result",
		},
		[]string{"result"},
	)
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streak_sweep_duration_seconds",
			Help:    "Duration of stale streak sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers the streak engine collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(streakMutations, staleClosed, validatorIssues, streakRestores, sweepDuration)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
