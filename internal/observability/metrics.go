package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	EntriesPosted     *prometheus.CounterVec
	AllocationsTotal  *prometheus.CounterVec
	CompensationsRun  prometheus.Counter
	LockContention    prometheus.Counter
	IntegrityFailures prometheus.Counter
}

// NewMetrics initialises the registry and baseline metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_journal_entries_posted_total",
		Help: "Journal entries posted, by event type.",
	}, []string{"event"})
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_debt_allocations_total",
		Help: "Debt allocation runs, by payment method.",
	}, []string{"method"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_posting_compensations_total",
		Help: "Compensating reversal batches posted after partial failures.",
	})
	contention := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_allocation_lock_contention_total",
		Help: "Allocation attempts that could not acquire the debtor lock.",
	})
	integrity := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_ledger_integrity_failures_total",
		Help: "Posted entries found unbalanced by the integrity scan.",
	})
	registry.MustRegister(requests, duration, entries, allocations, compensations, contention, integrity)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		EntriesPosted:     entries,
		AllocationsTotal:  allocations,
		CompensationsRun:  compensations,
		LockContention:    contention,
		IntegrityFailures: integrity,
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
