// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Refresh metrics
	RefreshRunsTotal    *prometheus.CounterVec
	RefreshDuration     prometheus.Histogram
	UniverseSize        prometheus.Gauge
	ChurnSuppressions   prometheus.Counter
	ChurnEventsTotal    *prometheus.CounterVec
	CandidatesEvaluated prometheus.Counter
	TradableCandidates  prometheus.Gauge

	// Regime cache metrics
	CacheDecisionsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dex_universe_lab"
	}

	return &Metrics{
		// Refresh metrics
		RefreshRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Total number of refresh runs by outcome",
		}, []string{"outcome"}),
		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Refresh run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		UniverseSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "universe_size",
			Help:      "Number of instruments in the current allowlist",
		}),
		ChurnSuppressions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "churn_suppressions_total",
			Help:      "Total number of refreshes suppressed by the churn budget",
		}),
		ChurnEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "churn_events_total",
			Help:      "Total number of churn log entries written by action and reason",
		}, []string{"action", "reason"}),
		CandidatesEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "candidates_evaluated_total",
			Help:      "Total number of candidates scored",
		}),
		TradableCandidates: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "tradable_candidates",
			Help:      "Number of tradable candidates in the latest snapshot",
		}),

		// Regime cache metrics
		CacheDecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "regimecache",
			Name:      "decisions_total",
			Help:      "Total number of cache reuse decisions by reason",
		}, []string{"reason"}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last successful refresh",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRefreshRun records a refresh run outcome and its duration.
func RecordRefreshRun(outcome string, durationSeconds float64) {
	DefaultMetrics.RefreshRunsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.RefreshDuration.Observe(durationSeconds)
}

// RecordChurnEvent increments the churn event counter.
func RecordChurnEvent(action, reason string) {
	DefaultMetrics.ChurnEventsTotal.WithLabelValues(action, reason).Inc()
}

// RecordCacheDecision increments the regime cache decision counter.
func RecordCacheDecision(reason string) {
	DefaultMetrics.CacheDecisionsTotal.WithLabelValues(reason).Inc()
}

// RecordDBError records a database query error.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}
