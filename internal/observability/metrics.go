// Package observability wires the Prometheus registry, HTTP middleware,
// and the service-specific counters for deliveries and commands.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the service. All methods
// are nil-safe so components can run without a registry in tests.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	deliveriesTotal *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	commandsTotal   *prometheus.CounterVec
}

// NewMetrics initializes the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rolewarden_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rolewarden_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rolewarden_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"status"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rolewarden_webhook_queue_depth",
		Help: "Pending webhook deliveries.",
	})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rolewarden_commands_total",
		Help: "Incoming command requests by action and result.",
	}, []string{"action", "result"})
	registry.MustRegister(requests, duration, deliveries, depth, commands)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		deliveriesTotal: deliveries,
		queueDepth:      depth,
		commandsTotal:   commands,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDelivery counts one delivery attempt outcome.
func (m *Metrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth records the current pending delivery count.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveCommand counts one incoming command by action and result.
func (m *Metrics) ObserveCommand(action, result string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(action, result).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
