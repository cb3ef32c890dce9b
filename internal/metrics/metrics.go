package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// MirrorCalls counts outbound Mirror API calls by operation and result
	MirrorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mirror_calls_total", Help: "Mirror API calls by operation and result."},
		[]string{"op", "result"},
	)
	// MirrorLatency tracks Mirror API call latencies in seconds
	MirrorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "mirror_call_duration_seconds", Help: "Mirror API call duration in seconds.", Buckets: []float64{.05, .1, .25, .5, 1, 2, 5}},
		[]string{"op"},
	)

	// Notifications counts subscription callbacks by collection and outcome
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "subscription_notifications_total", Help: "Subscription notifications by collection and outcome."},
		[]string{"collection", "outcome"},
	)

	// CartoDBWrites counts geodatabase writes by HTTP status code ("error" on transport failure)
	CartoDBWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cartodb_writes_total", Help: "CartoDB SQL API writes by status."},
		[]string{"status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(MirrorCalls)
		Registry.MustRegister(MirrorLatency)
		Registry.MustRegister(Notifications)
		Registry.MustRegister(CartoDBWrites)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
