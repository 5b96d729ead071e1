package mirror

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentmirror"

var (
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "reconcile_total",
			Help:      "Incidents reconciled by outcome",
		},
		[]string{"action"},
	)

	passesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "passes_total",
			Help:      "Poll passes by result",
		},
		[]string{"result"},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "pass_duration_seconds",
			Help:      "Time to run one full poll pass",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	lastPassTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last pass that completed without a fatal error",
		},
	)
)

func recordReconcile(action string) {
	reconcileTotal.WithLabelValues(action).Inc()
}

func recordPass(result string, duration time.Duration) {
	passesTotal.WithLabelValues(result).Inc()
	passDuration.Observe(duration.Seconds())
	if result == "success" {
		lastPassTimestamp.SetToCurrentTime()
	}
}
