// Package metrics holds the Prometheus instruments of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager groups every instrument so they can be passed around as one value.
type Manager struct {
	// counters
	CounterRequests             *prometheus.CounterVec
	CounterRecomputes           *prometheus.CounterVec
	CounterAchievementsUnlocked *prometheus.CounterVec
	CounterStorageFallbacks     *prometheus.CounterVec
	CounterStaleHistoryReads    prometheus.Counter
	CounterLeaderboardDegraded  prometheus.Counter
	CounterSessionsRecorded     prometheus.Counter

	// gauges
	GaugeActiveTrackers prometheus.Gauge

	// histograms
	HistRecomputeDuration    prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

// NewTestManager creates a Manager on a private registry.
func NewTestManager() *Manager {
	return NewManager("volt", "test", prometheus.NewRegistry())
}

// NewManager registers every instrument on reg.
func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request",
			Help:      "The total number of incoming requests",
		}, []string{"method", "status"}),
		CounterRecomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recomputes",
			Help:      "The total number of progress recomputation passes",
		}, []string{"outcome"}),
		CounterAchievementsUnlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "achievements_unlocked",
			Help:      "The total number of achievements unlocked",
		}, []string{"category"}),
		CounterStorageFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "storage_fallbacks",
			Help:      "Key-value operations that skipped a failing store",
		}, []string{"op"}),
		CounterStaleHistoryReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stale_history_reads",
			Help:      "History reads answered from the local snapshot",
		}),
		CounterLeaderboardDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "leaderboard_degraded",
			Help:      "Leaderboard reads that fell back to the caller's own entry",
		}),
		CounterSessionsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_recorded",
			Help:      "The total number of newly recorded workout sessions",
		}),
		GaugeActiveTrackers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_trackers",
			Help:      "Per-user trackers currently initialized",
		}),
		HistRecomputeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recompute_duration_seconds",
			Help:      "Duration of a single recomputation pass in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		HistogramRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Histogram of response time for requests in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "status_code"}),
	}
}
