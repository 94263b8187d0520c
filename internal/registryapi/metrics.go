package registryapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed at /metrics/prometheus.
// They are registered against a private registry rather than the global
// default one so multiple Server instances (e.g. in tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	agentsTotal      prometheus.Gauge
	registrations    *prometheus.CounterVec
	heartbeats       prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	watcherGauge     prometheus.Gauge
}

// NewMetrics builds and registers a fresh metrics set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		agentsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meshcore_registry_agents",
			Help: "Number of agents currently held in the registry index.",
		}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_registry_registrations_total",
			Help: "Total number of register_with_metadata calls, by outcome.",
		}, []string{"outcome"}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshcore_registry_heartbeats_total",
			Help: "Total number of heartbeats received.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcore_registry_http_requests_total",
			Help: "Total HTTP requests handled, by route and status class.",
		}, []string{"route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meshcore_registry_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		watcherGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meshcore_registry_event_watchers",
			Help: "Number of live event-log watchers.",
		}),
	}
}
