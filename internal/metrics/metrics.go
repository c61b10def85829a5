// Package metrics holds the Prometheus registry for the catalog service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meatshop"

// Metrics collects HTTP and catalog counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	assetOps        *prometheus.CounterVec
	orphanedAssets  *prometheus.CounterVec
	mutations       *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	assetOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asset_store_operations_total",
		Help:      "Asset store calls by operation and result.",
	}, []string{"op", "result"})
	orphans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphaned_assets_total",
		Help:      "Stored assets no product references any more, by the operation that left them behind.",
	}, []string{"operation"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_mutations_total",
		Help:      "Catalog write operations by operation and result.",
	}, []string{"operation", "result"})

	registry.MustRegister(
		requests,
		duration,
		assetOps,
		orphans,
		mutations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		assetOps:        assetOps,
		orphanedAssets:  orphans,
		mutations:       mutations,
	}
}

// Handler serves the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency per chi route pattern
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

// ObserveAssetOp matches storage.Observer
func (m *Metrics) ObserveAssetOp(op string, err error) {
	if m == nil {
		return
	}
	m.assetOps.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) OrphanedAsset(operation string) {
	if m == nil {
		return
	}
	m.orphanedAssets.WithLabelValues(operation).Inc()
}

func (m *Metrics) CatalogMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
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
