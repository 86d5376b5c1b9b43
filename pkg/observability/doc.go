// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health checks for the plugin manager.
//
// # Structured Logging
//
// Create a logrus logger from configuration:
//
//	logger := observability.NewLogger("debug", observability.FormatJSON, nil)
//	logger.WithField("plugin_id", "core").Info("Loaded plugin")
//
// Loggers travel with the context during a load pass:
//
//	ctx = observability.WithLogger(ctx, entry)
//	observability.FromContext(ctx).Debug("activating")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordPass(observability.PassSucceeded, time.Second, 4, 3)
//
// # Health Checks
//
// HealthChecker derives readiness from a LoadStatusProvider. Readiness is
// unhealthy until a pass completes without error and degraded while plugins
// are excluded.
//
//	checker := observability.NewHealthChecker(manager, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
//	defer providers.Shutdown(ctx)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/plugins: Emits the metrics and spans defined here
package observability
