package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Load pass metrics
	LoadPassesTotal  *prometheus.CounterVec
	LoadPassDuration prometheus.Histogram

	// Per-plugin metrics
	PluginLoadsTotal     *prometheus.CounterVec
	PluginsExcludedTotal *prometheus.CounterVec
	MetadataErrorsTotal  prometheus.Counter
	ActivationDuration   *prometheus.HistogramVec

	// Registry state
	PluginsDiscovered prometheus.Gauge
	PluginsLoaded     prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoadPassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugman_load_passes_total",
				Help: "Total number of plugin load passes",
			},
			[]string{"result"},
		),
		LoadPassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plugman_load_pass_duration_seconds",
				Help:    "Duration of a full discovery, resolution and load pass",
				Buckets: prometheus.DefBuckets,
			},
		),
		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugman_plugin_loads_total",
				Help: "Total number of per-plugin load attempts by outcome",
			},
			[]string{"outcome"},
		),
		PluginsExcludedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugman_plugins_excluded_total",
				Help: "Total number of plugins excluded from a load order",
			},
			[]string{"reason"},
		),
		MetadataErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plugman_metadata_errors_total",
				Help: "Total number of bundles dropped because their metadata could not be read",
			},
		),
		ActivationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plugman_plugin_activation_duration_seconds",
				Help:    "Time spent instantiating and activating a plugin",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"plugin_id"},
		),
		PluginsDiscovered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugman_plugins_discovered",
				Help: "Number of descriptors discovered by the last pass",
			},
		),
		PluginsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugman_plugins_loaded",
				Help: "Number of plugins currently held by the registry",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugman_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plugman_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.LoadPassesTotal,
		m.LoadPassDuration,
		m.PluginLoadsTotal,
		m.PluginsExcludedTotal,
		m.MetadataErrorsTotal,
		m.ActivationDuration,
		m.PluginsDiscovered,
		m.PluginsLoaded,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Load pass results
const (
	PassSucceeded = "success"
	PassFailed    = "failure"
	PassRejected  = "rejected"
)

// Per-plugin outcomes
const (
	OutcomeLoaded              = "loaded"
	OutcomeSkipped             = "skipped"
	OutcomeInstantiationFailed = "instantiation_failed"
	OutcomeActivationFailed    = "activation_failed"
)

// RecordPass records the result and duration of a load pass.
// All Record methods are no-ops on a nil *Metrics.
func (m *Metrics) RecordPass(result string, duration time.Duration, discovered, loaded int) {
	if m == nil {
		return
	}
	m.LoadPassesTotal.WithLabelValues(result).Inc()
	if result != PassRejected {
		m.LoadPassDuration.Observe(duration.Seconds())
		m.PluginsDiscovered.Set(float64(discovered))
		m.PluginsLoaded.Set(float64(loaded))
	}
}

// RecordPluginLoad records a per-plugin outcome
func (m *Metrics) RecordPluginLoad(pluginID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PluginLoadsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeLoaded {
		m.ActivationDuration.WithLabelValues(pluginID).Observe(duration.Seconds())
	}
}

// RecordExclusion records a plugin left out of the load order
func (m *Metrics) RecordExclusion(reason string) {
	if m == nil {
		return
	}
	m.PluginsExcludedTotal.WithLabelValues(reason).Inc()
}

// RecordMetadataErrors records bundles dropped during discovery
func (m *Metrics) RecordMetadataErrors(n int) {
	if m == nil || n == 0 {
		return
	}
	m.MetadataErrorsTotal.Add(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics,
// labelled by the matched route template
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
