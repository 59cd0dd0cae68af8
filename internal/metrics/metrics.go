// Package metrics registers the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every metric the gateway exports. Constructed once at
// startup and passed through the application, per spec.md §9's preference
// for explicit application-state objects over package globals.
type Registry struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	TokenRefreshTotal  *prometheus.CounterVec
	TruncationEvents   *prometheus.CounterVec
	ActiveStreams      prometheus.Gauge
}

// New creates and registers all metrics against reg.
func New(reg *prometheus.Registry) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total client requests handled, by endpoint and status.",
		}, []string{"endpoint", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Client request latency in seconds, by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		TokenRefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_token_refresh_total",
			Help: "Total upstream token refresh attempts, by manager and result.",
		}, []string{"manager", "result"}),
		TruncationEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_truncation_events_total",
			Help: "Total truncation events diagnosed by the stream parser, by kind.",
		}, []string{"kind"}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_streams",
			Help: "Number of streaming responses currently being piped to clients.",
		}),
	}
}
