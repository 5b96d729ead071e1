// Package metrics holds collectors shared by the ops server and the
// mapping store pool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentmirror"

// HTTPRequestDuration observes ops server requests by route.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Ops server request latency by method, route and status",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	},
	[]string{"method", "route", "status_code"},
)

// DBPoolConnections reports postgres pool connections by state.
var DBPoolConnections = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "pool_connections",
		Help:      "Mapping store pool connections by state",
	},
	[]string{"state"},
)

var buildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata, always 1",
	},
	[]string{"version", "commit"},
)

// RecordBuildInfo publishes the running version.
func RecordBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}
