package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/platinummonkey/plugman"

// OTelMetrics mirrors the load pass metrics as OpenTelemetry instruments so
// they reach the OTLP collector alongside traces
type OTelMetrics struct {
	passesTotal   metric.Int64Counter
	passDuration  metric.Float64Histogram
	pluginLoads   metric.Int64Counter
	loadDuration  metric.Float64Histogram
	exclusions    metric.Int64Counter
	pluginsLoaded metric.Int64Gauge
}

// NewOTelMetrics creates instruments from the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsFromProvider(otel.GetMeterProvider())
}

// NewOTelMetricsFromProvider creates instruments from provider
func NewOTelMetricsFromProvider(provider metric.MeterProvider) (*OTelMetrics, error) {
	meter := provider.Meter(meterName)

	m := &OTelMetrics{}
	var err error

	m.passesTotal, err = meter.Int64Counter(
		"plugman.load.passes",
		metric.WithDescription("Total number of plugin load passes"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create load passes counter: %w", err)
	}

	m.passDuration, err = meter.Float64Histogram(
		"plugman.load.pass.duration",
		metric.WithDescription("Duration of a plugin load pass in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create load pass duration histogram: %w", err)
	}

	m.pluginLoads, err = meter.Int64Counter(
		"plugman.plugin.loads",
		metric.WithDescription("Total number of per-plugin load attempts"),
		metric.WithUnit("{plugin}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin loads counter: %w", err)
	}

	m.loadDuration, err = meter.Float64Histogram(
		"plugman.plugin.load.duration",
		metric.WithDescription("Time spent instantiating and activating a plugin in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin load duration histogram: %w", err)
	}

	m.exclusions, err = meter.Int64Counter(
		"plugman.plugin.exclusions",
		metric.WithDescription("Total number of plugins excluded from a load order"),
		metric.WithUnit("{plugin}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exclusions counter: %w", err)
	}

	m.pluginsLoaded, err = meter.Int64Gauge(
		"plugman.plugins.loaded",
		metric.WithDescription("Number of plugins held by the registry"),
		metric.WithUnit("{plugin}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugins loaded gauge: %w", err)
	}

	return m, nil
}

// RecordPass records a finished load pass. Safe on a nil receiver.
func (m *OTelMetrics) RecordPass(ctx context.Context, result string, duration time.Duration, loaded int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))

	m.passesTotal.Add(ctx, 1, attrs)
	if result == PassRejected {
		return
	}
	m.passDuration.Record(ctx, duration.Seconds(), attrs)
	m.pluginsLoaded.Record(ctx, int64(loaded))
}

// RecordPluginLoad records a per-plugin outcome
func (m *OTelMetrics) RecordPluginLoad(ctx context.Context, pluginID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.pluginLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == OutcomeLoaded {
		m.loadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("plugin.id", pluginID)))
	}
}

// RecordExclusion records a plugin left out of the load order
func (m *OTelMetrics) RecordExclusion(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.exclusions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
