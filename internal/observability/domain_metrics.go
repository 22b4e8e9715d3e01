package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icequery_queries_total",
			Help: "Total number of executed query cycles by outcome.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "icequery_query_duration_seconds",
			Help:    "End-to-end query cycle latency, including materialization.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	sessionsOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icequery_sessions_opened_total",
			Help: "Total number of engine sessions opened.",
		},
	)
	snapshotResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icequery_snapshot_resolutions_total",
			Help: "Total number of latest-snapshot resolutions by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationSeconds,
		sessionsOpenedTotal,
		snapshotResolutionsTotal,
	)
}

func ObserveQuery(status string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(status).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementSessionsOpened() {
	sessionsOpenedTotal.Inc()
}

func ObserveSnapshotResolution(degraded bool) {
	outcome := "resolved"
	if degraded {
		outcome = "degraded"
	}
	snapshotResolutionsTotal.WithLabelValues(outcome).Inc()
}
