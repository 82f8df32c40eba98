package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authAttempts    *prometheus.CounterVec
	authzDenials    *prometheus.CounterVec
	rateLimitHits   *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guardpost_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	authAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_auth_attempts_total",
		Help: "Authentication attempts by method and result.",
	}, []string{"method", "result"})
	authzDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_authz_denials_total",
		Help: "Authorization denials by scope.",
	}, []string{"scope"})
	rateLimitHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_rate_limited_total",
		Help: "Requests rejected by an attempt ceiling, by flow.",
	}, []string{"flow"})
	registry.MustRegister(requests, duration, authAttempts, authzDenials, rateLimitHits)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authAttempts:    authAttempts,
		authzDenials:    authzDenials,
		rateLimitHits:   rateLimitHits,
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

// RecordAuthAttempt counts a login attempt outcome.
func (m *Metrics) RecordAuthAttempt(method, result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(method, result).Inc()
}

// RecordAuthzDenial counts a scope denial.
func (m *Metrics) RecordAuthzDenial(scope string) {
	if m == nil {
		return
	}
	m.authzDenials.WithLabelValues(scope).Inc()
}

// RecordRateLimited counts a rejected attempt for a flow.
func (m *Metrics) RecordRateLimited(flow string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(flow).Inc()
}

// Middleware records metrics for every HTTP request.
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
