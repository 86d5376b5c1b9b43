package plugins

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/plugman/pkg/config"
	"github.com/platinummonkey/plugman/pkg/contextkeys"
	"github.com/platinummonkey/plugman/pkg/observability"
)

// ErrSharedInstanceBuilt is returned when configuring the shared manager after first use
var ErrSharedInstanceBuilt = errors.New("shared plugin manager already constructed")

// Manager drives discovery, resolution and loading, and owns the registry of
// loaded plugins. Use SharedInstance for the process-wide manager.
type Manager struct {
	discoverer   BundleDiscoverer
	reader       MetadataReader
	instantiator Instantiator
	registry     *Registry
	loader       *Loader
	metrics      *observability.Metrics
	otelMetrics  *observability.OTelMetrics
	tracer       trace.Tracer
	log          *logrus.Logger
	concurrency  int
	searchDirs   []string

	loading atomic.Bool

	mu         sync.RWMutex // guards store and lastReport
	store      *DescriptorStore
	lastReport *LoadReport
}

// Option configures a Manager
type Option func(*Manager)

// WithDiscoverer sets the bundle discovery provider
func WithDiscoverer(discoverer BundleDiscoverer) Option {
	return func(m *Manager) {
		m.discoverer = discoverer
		m.searchDirs = nil
	}
}

// WithSearchDirs discovers bundles in dirs using the default manifest name
func WithSearchDirs(dirs ...string) Option {
	return func(m *Manager) {
		m.discoverer = nil
		m.searchDirs = dirs
	}
}

// WithMetadataReader sets the metadata reader
func WithMetadataReader(reader MetadataReader) Option {
	return func(m *Manager) {
		m.reader = reader
	}
}

// WithInstantiator sets the bundle instantiator
func WithInstantiator(instantiator Instantiator) Option {
	return func(m *Manager) {
		m.instantiator = instantiator
	}
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics sets the Prometheus metrics sink
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithOTelMetrics sets the OpenTelemetry metric instruments
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(m *Manager) {
		m.otelMetrics = metrics
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		m.tracer = tp.Tracer(tracerName)
	}
}

// WithDiscoveryConcurrency bounds parallel metadata reads during discovery
func WithDiscoveryConcurrency(n int) Option {
	return func(m *Manager) {
		m.concurrency = n
	}
}

// NewManager creates an independent manager. Without options it searches
// the default plugin directories and instantiates bundles with a
// BundleInstantiator.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:         logrus.New(),
		tracer:      otel.Tracer(tracerName),
		concurrency: 1,
		registry:    NewRegistry(),
		store:       NewDescriptorStore(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.discoverer == nil {
		dirs := m.searchDirs
		if len(dirs) == 0 {
			dirs = GetDefaultPluginDirectories()
		}
		m.discoverer = NewDirectoryDiscoverer(dirs, DefaultManifestName, m.log)
	}
	if m.reader == nil {
		m.reader = NewManifestReader(DefaultManifestName)
	}
	if m.instantiator == nil {
		m.instantiator = NewBundleInstantiator()
	}

	m.loader = NewLoader(m.registry, m.instantiator, m.log)
	m.loader.SetMetrics(m.metrics)
	m.loader.SetOTelMetrics(m.otelMetrics)
	m.loader.tracer = m.tracer

	return m
}

// OptionsFromConfig translates configuration into manager options
func OptionsFromConfig(cfg *config.Config, log *logrus.Logger) []Option {
	var reader MetadataReader = NewManifestReader(cfg.Plugins.ManifestName)
	if cfg.Plugins.ManifestCacheSize > 0 {
		reader = NewCachingMetadataReader(reader, cfg.Plugins.ManifestCacheSize, cfg.Plugins.ManifestCacheTTL)
	}

	return []Option{
		WithLogger(log),
		WithDiscoverer(NewDirectoryDiscoverer(cfg.Plugins.SearchDirs, cfg.Plugins.ManifestName, log)),
		WithMetadataReader(reader),
		WithDiscoveryConcurrency(cfg.Plugins.DiscoveryConcurrency),
	}
}

type sharedHolder struct {
	once    sync.Once
	mu      sync.Mutex
	built   bool
	opts    []Option
	manager *Manager
}

var shared = &sharedHolder{}

// ConfigureSharedInstance records options for the shared manager. It must be
// called before the first SharedInstance call.
func ConfigureSharedInstance(opts ...Option) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.built {
		return ErrSharedInstanceBuilt
	}
	shared.opts = append(shared.opts, opts...)
	return nil
}

// SharedInstance returns the process-wide manager, constructing it on first
// use. Construction happens exactly once even under concurrent first access.
// The environment configuration (PLUGMAN_*) provides the defaults; options
// from ConfigureSharedInstance are applied on top.
func SharedInstance() *Manager {
	shared.once.Do(func() {
		shared.mu.Lock()
		shared.built = true
		opts := append([]Option(nil), shared.opts...)
		shared.mu.Unlock()

		shared.manager = NewManager(append(defaultSharedOptions(), opts...)...)
	})
	return shared.manager
}

func defaultSharedOptions() []Option {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Warn("Invalid plugin manager configuration, using defaults")
		cfg = config.DefaultConfig()
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, nil)
	return OptionsFromConfig(cfg, log)
}

// LoadAllPlugins discovers bundles, resolves their load order and loads
// every eligible plugin in that order. It returns the first instantiation or
// activation failure as a *LoadError; plugins loaded before it stay
// registered. Plugins already registered by an earlier pass are not loaded
// again. A call made while another pass is running fails with
// ErrLoadInProgress.
func (m *Manager) LoadAllPlugins(ctx context.Context) error {
	if !m.loading.CompareAndSwap(false, true) {
		m.metrics.RecordPass(observability.PassRejected, 0, 0, 0)
		m.otelMetrics.RecordPass(ctx, observability.PassRejected, 0, 0)
		return ErrLoadInProgress
	}
	defer m.loading.Store(false)

	report := &LoadReport{
		PassID:    uuid.NewString(),
		StartedAt: time.Now(),
		States:    make(map[string]LoadState),
		Excluded:  make(map[string]ExclusionReason),
	}
	log := m.log.WithField("pass_id", report.PassID)
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		log = log.WithField("request_id", requestID)
	}
	ctx = contextkeys.WithPassID(ctx, report.PassID)

	ctx, span := m.tracer.Start(ctx, "plugins.LoadAllPlugins",
		trace.WithAttributes(attribute.String("plugman.pass_id", report.PassID)),
	)
	defer span.End()

	err := m.runPass(ctx, report, log)

	report.Duration = time.Since(report.StartedAt)
	report.Err = err

	result := observability.PassSucceeded
	if err != nil {
		result = observability.PassFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("Plugin load pass aborted")
	} else {
		log.WithFields(logrus.Fields{
			"loaded":   len(report.Loaded),
			"skipped":  len(report.Skipped),
			"excluded": len(report.Excluded),
			"duration": report.Duration,
		}).Info("Plugin load pass complete")
	}
	m.metrics.RecordPass(result, report.Duration, report.Discovered, m.registry.Count())
	m.otelMetrics.RecordPass(ctx, result, report.Duration, m.registry.Count())

	m.mu.Lock()
	m.lastReport = report
	m.mu.Unlock()

	return err
}

func (m *Manager) runPass(ctx context.Context, report *LoadReport, log *logrus.Entry) error {
	cache, caching := m.reader.(*CachingMetadataReader)
	var hitsBefore, missesBefore int64
	if caching {
		hitsBefore, missesBefore = cache.Stats()
	}

	store, metadataErrs, err := DiscoverDescriptors(ctx, m.discoverer, m.reader, m.concurrency, log)
	if err != nil {
		return fmt.Errorf("plugin discovery failed: %w", err)
	}
	if caching {
		hits, misses := cache.Stats()
		report.Cache = &CacheStats{Hits: hits - hitsBefore, Misses: misses - missesBefore}
	}
	m.metrics.RecordMetadataErrors(len(metadataErrs))

	m.mu.Lock()
	m.store = store
	m.mu.Unlock()

	descriptors := store.All()
	report.Discovered = len(descriptors)
	for _, d := range descriptors {
		report.States[d.ID] = LoadStateDiscovered
	}

	resolution, err := Resolve(descriptors)
	if err != nil {
		return fmt.Errorf("plugin resolution failed: %w", err)
	}

	for _, d := range descriptors {
		reason, excluded := resolution.Excluded[d.ID]
		if !excluded {
			continue
		}
		report.States[d.ID] = LoadStateIneligible
		report.Excluded[d.ID] = reason
		m.metrics.RecordExclusion(string(reason))
		m.otelMetrics.RecordExclusion(ctx, string(reason))
		log.WithFields(logrus.Fields{
			"plugin_id":    d.ID,
			"reason":       reason,
			"dependencies": d.Dependencies,
		}).Warn("Plugin is not eligible for loading")
	}

	for _, d := range resolution.Order {
		report.States[d.ID] = LoadStateEligible
	}
	report.Order = resolution.IDs()

	return m.loader.Load(ctx, resolution.Order, report)
}

// Plan runs discovery and resolution without loading anything
func (m *Manager) Plan(ctx context.Context) (*Resolution, []*MetadataError, error) {
	log := m.log.WithField("plan", true)

	store, metadataErrs, err := DiscoverDescriptors(ctx, m.discoverer, m.reader, m.concurrency, log)
	if err != nil {
		return nil, nil, fmt.Errorf("plugin discovery failed: %w", err)
	}

	resolution, err := Resolve(store.All())
	if err != nil {
		return nil, nil, fmt.Errorf("plugin resolution failed: %w", err)
	}
	return resolution, metadataErrs, nil
}

// PluginForIdentifier returns the loaded instance for id
func (m *Manager) PluginForIdentifier(id string) (Instance, bool) {
	return m.registry.Lookup(id)
}

// Plugins returns a snapshot of every loaded instance in load order
func (m *Manager) Plugins() []Instance {
	return m.registry.Instances()
}

// Registry returns the manager's registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Descriptors returns the descriptors discovered by the most recent pass
func (m *Manager) Descriptors() []*Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.store.All()
}

// LastReport returns the report of the most recent completed pass, or nil
func (m *Manager) LastReport() *LoadReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastReport
}

// Loading reports whether a load pass is running
func (m *Manager) Loading() bool {
	return m.loading.Load()
}

// LoadStatus implements observability.LoadStatusProvider
func (m *Manager) LoadStatus() observability.LoadStatus {
	status := observability.LoadStatus{
		Loading: m.Loading(),
		Loaded:  m.registry.Count(),
	}

	if report := m.LastReport(); report != nil {
		status.Completed = true
		status.Excluded = len(report.Excluded)
		status.LastError = report.Err
		status.LastPass = report.StartedAt
	}
	return status
}
