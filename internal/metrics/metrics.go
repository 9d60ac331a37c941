package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Total number of completed analyses",
		},
		[]string{"kind", "status"},
	)

	analysisFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_failures_total",
			Help: "Total number of analyze operations rejected before a record was produced",
		},
		[]string{"reason"},
	)

	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End-to-end analyze duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
)

func RecordAnalysis(kind, status string, elapsed time.Duration) {
	analysesTotal.WithLabelValues(kind, status).Inc()
	analysisDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func RecordFailure(reason string) {
	analysisFailuresTotal.WithLabelValues(reason).Inc()
}
