package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promCollectors live on a per-service registry so several services can
// coexist in one process (tests create many).
type promCollectors struct {
	registry *prometheus.Registry

	upstreamCalls      *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	availabilityChecks *prometheus.CounterVec
}

func newPromCollectors() *promCollectors {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	pc := &promCollectors{
		registry: registry,
		upstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ollamagate_upstream_calls_total",
			Help: "Total daemon calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ollamagate_upstream_call_duration_seconds",
			Help:    "Daemon call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"operation"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ollamagate_http_requests_total",
			Help: "Total HTTP requests served by route, method and status class",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ollamagate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		availabilityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ollamagate_availability_checks_total",
			Help: "Model availability checks by result reason",
		}, []string{"reason"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return pc
}

// Handler serves the Prometheus exposition of this service's registry.
func (ms *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(ms.prom.registry, promhttp.HandlerOpts{Registry: ms.prom.registry})
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
