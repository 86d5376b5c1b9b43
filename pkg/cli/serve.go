package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/plugman/pkg/api"
	"github.com/platinummonkey/plugman/pkg/middleware"
	"github.com/platinummonkey/plugman/pkg/observability"
	"github.com/platinummonkey/plugman/pkg/plugins"
)

func newServeCommand(o *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load all plugins and serve registry introspection over HTTP",
		Long: `Serve runs a load pass and then exposes the registry, the last load
report, health probes and Prometheus metrics over HTTP until interrupted.
A failed load pass does not stop the server; readiness reports it instead.

Example:
  plugman serve --addr 0.0.0.0:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := o.setup(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
			if err != nil {
				return err
			}

			opts := []plugins.Option{plugins.WithTracerProvider(providers.Tracer())}
			if providers != nil {
				otelMetrics, err := observability.NewOTelMetricsFromProvider(providers.MeterProvider)
				if err != nil {
					return err
				}
				opts = append(opts, plugins.WithOTelMetrics(otelMetrics))
			}

			var serverOpts []api.Option
			if cfg.Observability.MetricsEnabled {
				registry := prometheus.NewRegistry()
				registry.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				metrics := observability.NewMetrics(registry)
				opts = append(opts, plugins.WithMetrics(metrics))
				serverOpts = append(serverOpts, api.WithMetrics(metrics, registry))
			}

			manager, err := o.manager(cfg, logger, opts...)
			if err != nil {
				return err
			}

			if err := manager.LoadAllPlugins(ctx); err != nil {
				logger.WithError(err).Error("Initial plugin load failed")
			}

			waitCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			if cfg.Server.LoadRateLimit > 0 {
				limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
					RequestsPerWindow: cfg.Server.LoadRateLimit,
					WindowDuration:    time.Minute,
					BurstSize:         1,
				})
				limiter.StartCleanup(waitCtx)
				serverOpts = append(serverOpts, api.WithLoadRateLimit(limiter))
			}

			serverOpts = append(serverOpts, api.WithLogger(logger), api.WithVersion(o.version))
			var handler http.Handler = api.NewServer(manager, serverOpts...)
			if providers != nil {
				handler = otelhttp.NewHandler(handler, "plugman.http",
					otelhttp.WithTracerProvider(providers.Tracer()),
					otelhttp.WithMeterProvider(providers.MeterProvider),
				)
			}
			server := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
			shutdown.RegisterShutdownFunc(providers.Shutdown)

			listenErr := make(chan error, 1)
			go func() {
				defer cancel()
				logger.Infof("Serving plugin registry on %s", cfg.Server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					listenErr <- err
				}
			}()

			shutdownErr := shutdown.WaitForShutdown(waitCtx)
			select {
			case err := <-listenErr:
				return errors.Join(fmt.Errorf("HTTP server failed: %w", err), shutdownErr)
			default:
				return shutdownErr
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides PLUGMAN_HTTP_ADDR)")
	return cmd
}
