package inventory

import "github.com/prometheus/client_golang/prometheus"

// Prometheus merge-cycle metrics, exposed on the server's /metrics endpoint.
var (
	mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventory_merge_duration_seconds",
			Help:    "Duration of one discovery merge cycle in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	degradedSources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_degraded_sources",
			Help: "Number of source adapters that failed during the last merge cycle.",
		},
	)
	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_events_emitted_total",
			Help: "Total number of service change events published, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(mergeDuration)
	prometheus.MustRegister(degradedSources)
	prometheus.MustRegister(eventsEmitted)
}
