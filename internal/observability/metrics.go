// Package observability provides Prometheus metrics for the leaderboard service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Refresh metrics
	RefreshTotal    *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	RefreshTriggers *prometheus.CounterVec

	// Cache metrics
	SnapshotGeneration *prometheus.GaugeVec
	SnapshotAccounts   *prometheus.GaugeVec
	FreshKeys          prometheus.Gauge
	CacheRequests      *prometheus.CounterVec

	// Ingestion metrics
	SignalCursor prometheus.Gauge

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signal_leaderboard"
	}

	return &Metrics{
		RefreshTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Total number of leaderboard refreshes by key and outcome",
		}, []string{"key", "outcome"}),
		RefreshDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Leaderboard refresh duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"key"}),
		RefreshTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "triggers_total",
			Help:      "Refresh triggers by reason",
		}, []string{"reason"}),

		SnapshotGeneration: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "snapshot_generation",
			Help:      "Generation of the snapshot currently served per key",
		}, []string{"key"}),
		SnapshotAccounts: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "snapshot_ranked_accounts",
			Help:      "Ranked accounts in the snapshot currently served per key",
		}, []string{"key"}),
		FreshKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fresh_keys",
			Help:      "Number of keys whose snapshot is within TTL",
		}),
		CacheRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache reads by result (hit, stale, cold, unavailable)",
		}, []string{"result"}),

		SignalCursor: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "signal_cursor",
			Help:      "Highest signal id folded into tracked keys",
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRefresh records one finished refresh.
func RecordRefresh(key, outcome string, d time.Duration) {
	DefaultMetrics.RefreshTotal.WithLabelValues(key, outcome).Inc()
	DefaultMetrics.RefreshDuration.WithLabelValues(key).Observe(d.Seconds())
}

// RecordTrigger counts a refresh trigger.
func RecordTrigger(reason string) {
	DefaultMetrics.RefreshTriggers.WithLabelValues(reason).Inc()
}

// RecordSnapshot updates the per-key snapshot gauges.
func RecordSnapshot(key string, generation uint64, ranked int) {
	DefaultMetrics.SnapshotGeneration.WithLabelValues(key).Set(float64(generation))
	DefaultMetrics.SnapshotAccounts.WithLabelValues(key).Set(float64(ranked))
}

// RecordCacheRequest counts a cache read.
func RecordCacheRequest(result string) {
	DefaultMetrics.CacheRequests.WithLabelValues(result).Inc()
}

// UpdateFreshKeys sets the fresh keys gauge.
func UpdateFreshKeys(n int) {
	DefaultMetrics.FreshKeys.Set(float64(n))
}

// UpdateSignalCursor sets the ingestion cursor gauge.
func UpdateSignalCursor(cursor int64) {
	DefaultMetrics.SignalCursor.Set(float64(cursor))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, status string, d time.Duration) {
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}
