package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/plugman/pkg/httputil"
	"github.com/platinummonkey/plugman/pkg/middleware"
	"github.com/platinummonkey/plugman/pkg/observability"
	"github.com/platinummonkey/plugman/pkg/plugins"
)

// PluginManager is the part of plugins.Manager the server exposes
type PluginManager interface {
	observability.LoadStatusProvider
	LoadAllPlugins(ctx context.Context) error
	Descriptors() []*plugins.Descriptor
	Registry() *plugins.Registry
	LastReport() *plugins.LoadReport
}

// Server serves read-only introspection of the plugin registry, plus a
// trigger for new load passes
type Server struct {
	manager  PluginManager
	router   *mux.Router
	handler  http.Handler
	log      *logrus.Logger
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	version  string
	limiter  *middleware.RateLimiter
}

// Option configures a Server
type Option func(*Server)

// WithMetrics instruments requests and exposes /metrics from gatherer
func WithMetrics(metrics *observability.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.gatherer = gatherer
	}
}

// WithLogger sets the request logger
func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLoadRateLimit limits how often each client may trigger a load pass
func WithLoadRateLimit(limiter *middleware.RateLimiter) Option {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// WithVersion sets the version reported by health checks
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a new API server for manager
func NewServer(manager PluginManager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		router:  mux.NewRouter(),
		log:     logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	s.router.HandleFunc("/plugins", s.listPlugins).Methods(http.MethodGet)
	s.router.HandleFunc("/plugins/{id}", s.getPlugin).Methods(http.MethodGet)
	s.router.HandleFunc("/report", s.getReport).Methods(http.MethodGet)
	s.router.HandleFunc("/graph", s.getGraph).Methods(http.MethodGet)
	var load http.Handler = http.HandlerFunc(s.triggerLoad)
	if s.limiter != nil {
		load = middleware.NewRateLimitMiddleware(s.limiter).Handler(load)
	}
	s.router.Handle("/load", load).Methods(http.MethodPost)

	observability.RegisterHealthRoutes(s.router, observability.NewHealthChecker(s.manager, s.version))
	if s.gatherer != nil {
		observability.RegisterMetricsEndpoint(s.router, s.gatherer)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
