package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/plugman/pkg/observability"
)

const tracerName = "github.com/platinummonkey/plugman/pkg/plugins"

// Loader walks a resolved load order, instantiating and activating each
// plugin and recording it in the registry. It stops at the first failure;
// plugins loaded before the failure stay registered.
type Loader struct {
	registry     *Registry
	instantiator Instantiator
	metrics      *observability.Metrics
	otelMetrics  *observability.OTelMetrics
	tracer       trace.Tracer
	log          *logrus.Logger
}

// NewLoader creates a loader that fills registry using instantiator
func NewLoader(registry *Registry, instantiator Instantiator, log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
	}

	return &Loader{
		registry:     registry,
		instantiator: instantiator,
		tracer:       otel.Tracer(tracerName),
		log:          log,
	}
}

// SetMetrics sets the metrics sink (nil disables metrics)
func (l *Loader) SetMetrics(metrics *observability.Metrics) {
	l.metrics = metrics
}

// SetOTelMetrics sets the OpenTelemetry instruments (nil disables them)
func (l *Loader) SetOTelMetrics(metrics *observability.OTelMetrics) {
	l.otelMetrics = metrics
}

// SetTracerProvider sets the provider spans are created from
func (l *Loader) SetTracerProvider(tp trace.TracerProvider) {
	l.tracer = tp.Tracer(tracerName)
}

// Load processes order strictly in sequence. Identifiers already present in
// the registry are skipped. The first instantiation or activation failure is
// returned as a *LoadError. report may be nil.
func (l *Loader) Load(ctx context.Context, order []*Descriptor, report *LoadReport) error {
	log := logrus.NewEntry(l.log)
	if report != nil && report.PassID != "" {
		log = log.WithField("pass_id", report.PassID)
	}

	for _, d := range order {
		pluginLog := log.WithField("plugin_id", d.ID)

		if l.registry.Has(d.ID) {
			pluginLog.Debug("Plugin already loaded, skipping")
			l.recordPluginLoad(ctx, d.ID, observability.OutcomeSkipped, 0)
			if report != nil {
				report.Skipped = append(report.Skipped, d.ID)
			}
			report.setState(d.ID, LoadStateLoaded)
			continue
		}

		if err := l.loadOne(ctx, d, report, pluginLog); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) loadOne(ctx context.Context, d *Descriptor, report *LoadReport, log *logrus.Entry) (err error) {
	ctx, span := l.tracer.Start(ctx, "plugins.load",
		trace.WithAttributes(
			attribute.String("plugin.id", d.ID),
			attribute.String("plugin.location", d.Location),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log = observability.UpdateLoggerWithTraceContext(ctx, log)
	ctx = observability.WithLogger(ctx, log)
	start := time.Now()

	instance, err := l.instantiate(ctx, d, log)
	if err != nil {
		l.recordPluginLoad(ctx, d.ID, observability.OutcomeInstantiationFailed, 0)
		report.setState(d.ID, LoadStateFailed)
		log.WithError(err).Error("Failed to instantiate plugin")
		return &LoadError{ID: d.ID, Phase: PhaseInstantiate, Err: err}
	}
	report.setState(d.ID, LoadStateLoaded)

	if activator, ok := instance.(Activator); ok {
		if err := l.activate(ctx, activator, log); err != nil {
			l.recordPluginLoad(ctx, d.ID, observability.OutcomeActivationFailed, 0)
			report.setState(d.ID, LoadStateFailed)
			log.WithError(err).Error("Failed to activate plugin")
			return &LoadError{ID: d.ID, Phase: PhaseActivate, Err: err}
		}
		report.setState(d.ID, LoadStateActivated)
		span.SetAttributes(attribute.Bool("plugin.activated", true))
	}

	if err := l.registry.RecordLoaded(d.ID, instance, d); err != nil {
		report.setState(d.ID, LoadStateFailed)
		return fmt.Errorf("failed to record plugin %s: %w", d.ID, err)
	}

	elapsed := time.Since(start)
	l.recordPluginLoad(ctx, d.ID, observability.OutcomeLoaded, elapsed)
	if report != nil {
		report.Loaded = append(report.Loaded, d.ID)
	}

	log.WithField("duration", elapsed).Infof("Loaded plugin %s from %s", d.ID, d.Location)
	return nil
}

func (l *Loader) instantiate(ctx context.Context, d *Descriptor, log *logrus.Entry) (instance Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogPanic(log, "plugin instantiation", r)
			instance, err = nil, observability.MustRecover(r)
		}
	}()

	instance, err = l.instantiator.Instantiate(ctx, d)
	if err == nil && instance == nil {
		err = fmt.Errorf("instantiator returned no instance")
	}
	return instance, err
}

func (l *Loader) activate(ctx context.Context, activator Activator, log *logrus.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogPanic(log, "plugin activation", r)
			err = observability.MustRecover(r)
		}
	}()

	return activator.Activate(ctx)
}

func (l *Loader) recordPluginLoad(ctx context.Context, id, outcome string, elapsed time.Duration) {
	l.metrics.RecordPluginLoad(id, outcome, elapsed)
	l.otelMetrics.RecordPluginLoad(ctx, id, outcome, elapsed)
}
