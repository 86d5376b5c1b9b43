package plugins

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plugman/pkg/config"
	"github.com/platinummonkey/plugman/pkg/contextkeys"
	"github.com/platinummonkey/plugman/pkg/observability"
)

func manifest(id string, deps ...string) *Manifest {
	return &Manifest{ID: id, Dependencies: deps}
}

func newTestManager(inst Instantiator, manifests ...*Manifest) *Manager {
	discoverer, reader := staticSource(manifests...)
	return NewManager(
		WithLogger(quietLogger()),
		WithDiscoverer(discoverer),
		WithMetadataReader(reader),
		WithInstantiator(inst),
	)
}

func TestManager_LoadAllPlugins_ExcludesMissingDependency(t *testing.T) {
	inst := newFakeInstantiator()
	m := newTestManager(inst, manifest("A"), manifest("B", "A"), manifest("C", "D"))

	require.NoError(t, m.LoadAllPlugins(context.Background()))

	assert.Equal(t, []string{"A", "B"}, inst.Calls())
	assert.Equal(t, []string{"A", "B"}, instanceIDs(m.Plugins()))

	report := m.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, []string{"A", "B"}, report.Order)
	assert.Equal(t, ExcludedMissingDependency, report.Excluded["C"])
	assert.Equal(t, LoadStateIneligible, report.State("C"))
	assert.Equal(t, 3, report.Discovered)
	assert.NotEmpty(t, report.PassID)
	assert.NoError(t, report.Err)
}

func TestManager_LoadAllPlugins_AbortsOnFailure(t *testing.T) {
	inst := newFakeInstantiator()
	inst.failOn["B"] = errBoom
	m := newTestManager(inst, manifest("A"), manifest("B", "A"))

	err := m.LoadAllPlugins(context.Background())

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "B", loadErr.ID)
	assert.Equal(t, []string{"A"}, instanceIDs(m.Plugins()))
	assert.Equal(t, err, m.LastReport().Err)
}

func TestManager_LoadAllPlugins_Cycle(t *testing.T) {
	inst := newFakeInstantiator()
	m := newTestManager(inst, manifest("X", "Y"), manifest("Y", "X"))

	require.NoError(t, m.LoadAllPlugins(context.Background()))

	assert.Empty(t, inst.Calls())
	assert.Empty(t, m.Plugins())
	report := m.LastReport()
	assert.Empty(t, report.Order)
	assert.Equal(t, ExcludedDependencyCycle, report.Excluded["X"])
	assert.Equal(t, ExcludedDependencyCycle, report.Excluded["Y"])
}

func TestManager_PluginForIdentifier(t *testing.T) {
	m := newTestManager(newFakeInstantiator(), manifest("A"), manifest("B", "A"), manifest("C", "D"))

	_, found := m.PluginForIdentifier("A")
	assert.False(t, found, "nothing is registered before a pass")

	require.NoError(t, m.LoadAllPlugins(context.Background()))

	instance, found := m.PluginForIdentifier("A")
	require.True(t, found)
	assert.Equal(t, "A", instance.(*testPlugin).id)

	_, found = m.PluginForIdentifier("Z")
	assert.False(t, found)
	_, found = m.PluginForIdentifier("C")
	assert.False(t, found)
}

func TestManager_AbortLeavesEarlierPluginsRegistered(t *testing.T) {
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	for k := range ids {
		t.Run(ids[k], func(t *testing.T) {
			manifests := make([]*Manifest, 0, len(ids))
			for _, id := range ids {
				manifests = append(manifests, manifest(id))
			}
			inst := newFakeInstantiator()
			inst.failOn[ids[k]] = errBoom
			m := newTestManager(inst, manifests...)

			err := m.LoadAllPlugins(context.Background())
			require.Error(t, err)

			assert.Equal(t, ids[:k], m.Registry().IDs())
			assert.Equal(t, ids[:k+1], inst.Calls())
		})
	}
}

func TestManager_RepeatedPassIsIdempotent(t *testing.T) {
	inst := newFakeInstantiator()
	m := newTestManager(inst, manifest("A"), manifest("B", "A"))

	require.NoError(t, m.LoadAllPlugins(context.Background()))
	first := m.Plugins()

	require.NoError(t, m.LoadAllPlugins(context.Background()))

	assert.Equal(t, []string{"A", "B"}, inst.Calls(), "registered plugins are not instantiated again")
	assert.Equal(t, first, m.Plugins())
	assert.Equal(t, []string{"A", "B"}, m.LastReport().Skipped)
	assert.Empty(t, m.LastReport().Loaded)
}

func TestManager_RetryAfterFailure(t *testing.T) {
	inst := newFakeInstantiator()
	inst.failOn["B"] = errBoom
	m := newTestManager(inst, manifest("A"), manifest("B", "A"), manifest("C"))

	require.Error(t, m.LoadAllPlugins(context.Background()))
	assert.Equal(t, []string{"A"}, m.Registry().IDs())

	delete(inst.failOn, "B")
	require.NoError(t, m.LoadAllPlugins(context.Background()))

	assert.Equal(t, []string{"A", "B", "C"}, m.Registry().IDs())
	assert.Equal(t, []string{"A"}, m.LastReport().Skipped)
}

func TestManager_RejectsReentrantPass(t *testing.T) {
	var m *Manager
	var nested error

	plugin := activatingPlugin{&testPlugin{id: "A"}}
	plugin.onActivate = func(ctx context.Context) error {
		assert.True(t, m.Loading())
		nested = m.LoadAllPlugins(ctx)
		return nil
	}
	m = newTestManager(InstantiatorFunc(func(ctx context.Context, d *Descriptor) (Instance, error) {
		return plugin, nil
	}), manifest("A"))

	require.NoError(t, m.LoadAllPlugins(context.Background()))

	assert.ErrorIs(t, nested, ErrLoadInProgress)
	assert.False(t, m.Loading())
	assert.Equal(t, []string{"A"}, m.Registry().IDs())
}

func TestManager_PassIDInContext(t *testing.T) {
	var passID string
	plugin := activatingPlugin{&testPlugin{id: "A"}}
	plugin.onActivate = func(ctx context.Context) error {
		passID = contextkeys.GetPassID(ctx)
		return nil
	}
	m := newTestManager(InstantiatorFunc(func(ctx context.Context, d *Descriptor) (Instance, error) {
		return plugin, nil
	}), manifest("A"))

	require.NoError(t, m.LoadAllPlugins(context.Background()))
	assert.Equal(t, m.LastReport().PassID, passID)
}

func TestManager_Metrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	inst := newFakeInstantiator()
	discoverer, reader := staticSource(manifest("A"), manifest("B", "missing"))

	var m *Manager
	plugin := activatingPlugin{&testPlugin{id: "A"}}
	plugin.onActivate = func(ctx context.Context) error {
		return m.LoadAllPlugins(ctx)
	}
	inst.activators["A"] = plugin

	m = NewManager(
		WithLogger(quietLogger()),
		WithDiscoverer(discoverer),
		WithMetadataReader(reader),
		WithInstantiator(inst),
		WithMetrics(metrics),
	)

	err := m.LoadAllPlugins(context.Background())
	require.ErrorIs(t, err, ErrLoadInProgress)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LoadPassesTotal.WithLabelValues(observability.PassRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LoadPassesTotal.WithLabelValues(observability.PassFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PluginsExcludedTotal.WithLabelValues(string(ExcludedMissingDependency))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PluginsDiscovered))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PluginsLoaded))
}

func TestManager_MetadataErrorsDropBundle(t *testing.T) {
	discoverer, reader := staticSource(manifest("A"), manifest("B", "A"))
	discoverer = append(discoverer, "/bundles/unreadable")
	reader["/bundles/invalid"] = &Manifest{ID: "not valid!"}
	discoverer = append(discoverer, "/bundles/invalid")

	m := NewManager(
		WithLogger(quietLogger()),
		WithDiscoverer(discoverer),
		WithMetadataReader(reader),
		WithInstantiator(newFakeInstantiator()),
	)

	require.NoError(t, m.LoadAllPlugins(context.Background()))
	assert.Equal(t, []string{"A", "B"}, m.Registry().IDs())
	assert.Len(t, m.Descriptors(), 2)
}

func TestManager_ReaderBypassingValidation(t *testing.T) {
	inst := newFakeInstantiator().withActivator("", nil)
	m := NewManager(
		WithLogger(quietLogger()),
		WithDiscoverer(StaticDiscoverer{"/bundles/blank", "/bundles/nil", "/bundles/A"}),
		WithMetadataReader(rawReader{"/bundles/blank": {ID: ""}, "/bundles/nil": nil, "/bundles/A": manifest("A")}),
		WithInstantiator(inst),
	)

	require.NoError(t, m.LoadAllPlugins(context.Background()))
	assert.Equal(t, []string{"A"}, m.Registry().IDs())
	assert.Equal(t, []string{"A"}, inst.Calls(), "invalid bundles are never instantiated")
	assert.False(t, inst.activators[""].activated)

	_, metadataErrs, err := m.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, metadataErrs, 2)
	for _, merr := range metadataErrs {
		assert.ErrorIs(t, merr, ErrInvalidManifest)
	}
}

func TestManager_SearchDirsUseFinalLogger(t *testing.T) {
	logger := quietLogger()
	m := NewManager(WithSearchDirs("/opt/plugins"), WithLogger(logger))

	discoverer, ok := m.discoverer.(*DirectoryDiscoverer)
	require.True(t, ok)
	assert.Same(t, logger, discoverer.log)
	assert.Equal(t, []string{"/opt/plugins"}, discoverer.dirs)

	m = NewManager(WithSearchDirs("/opt/plugins"), WithDiscoverer(StaticDiscoverer{"/a"}))
	assert.Equal(t, StaticDiscoverer{"/a"}, m.discoverer)
}

func TestManager_Plan(t *testing.T) {
	inst := newFakeInstantiator()
	discoverer, reader := staticSource(manifest("app", "db"), manifest("db"), manifest("orphan", "gone"))
	discoverer = append(discoverer, "/bundles/unreadable")
	m := NewManager(
		WithLogger(quietLogger()),
		WithDiscoverer(discoverer),
		WithMetadataReader(reader),
		WithInstantiator(inst),
	)

	resolution, metadataErrs, err := m.Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"db", "app"}, resolution.IDs())
	assert.Equal(t, ExcludedMissingDependency, resolution.Excluded["orphan"])
	require.Len(t, metadataErrs, 1)
	assert.Equal(t, "/bundles/unreadable", metadataErrs[0].Location)

	assert.Empty(t, inst.Calls(), "planning never instantiates")
	assert.Nil(t, m.LastReport())
}

func TestManager_LoadStatus(t *testing.T) {
	inst := newFakeInstantiator()
	m := newTestManager(inst, manifest("A"), manifest("B", "gone"))

	status := m.LoadStatus()
	assert.False(t, status.Completed)
	assert.Zero(t, status.Loaded)

	require.NoError(t, m.LoadAllPlugins(context.Background()))

	status = m.LoadStatus()
	assert.True(t, status.Completed)
	assert.False(t, status.Loading)
	assert.Equal(t, 1, status.Loaded)
	assert.Equal(t, 1, status.Excluded)
	assert.NoError(t, status.LastError)
	assert.False(t, status.LastPass.IsZero())

	checker := observability.NewHealthChecker(m, "test")
	assert.Equal(t, observability.StatusDegraded, checker.Check().Status)
}

func TestManager_DiscoveryFailure(t *testing.T) {
	m := NewManager(
		WithLogger(quietLogger()),
		WithDiscoverer(failingDiscoverer{}),
		WithInstantiator(newFakeInstantiator()),
	)

	err := m.LoadAllPlugins(context.Background())
	assert.ErrorContains(t, err, "plugin discovery failed: search path unreadable")
	assert.Equal(t, err, m.LastReport().Err)
}

func TestOptionsFromConfig(t *testing.T) {
	dir := t.TempDir()
	for _, m := range []*Manifest{manifest("core"), manifest("audit", "core")} {
		bundle := filepath.Join(dir, m.ID)
		require.NoError(t, os.MkdirAll(bundle, 0755))
		saveManifest(t, m, filepath.Join(bundle, "bundle.yaml"))
	}

	cfg := config.DefaultConfig()
	cfg.Plugins.SearchDirs = []string{dir}
	cfg.Plugins.ManifestName = "bundle.yaml"
	cfg.Plugins.DiscoveryConcurrency = 2

	inst := newFakeInstantiator()
	m := NewManager(append(OptionsFromConfig(cfg, quietLogger()), WithInstantiator(inst))...)

	assert.Equal(t, 2, m.concurrency)
	cache, ok := m.reader.(*CachingMetadataReader)
	require.True(t, ok, "the default configuration caches manifests")

	require.NoError(t, m.LoadAllPlugins(context.Background()))
	require.NoError(t, m.LoadAllPlugins(context.Background()))

	assert.Equal(t, []string{"core", "audit"}, m.Registry().IDs())
	hits, misses := cache.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, &CacheStats{Hits: 2}, m.LastReport().Cache, "second pass reads only from the cache")

	t.Run("cache disabled", func(t *testing.T) {
		cfg.Plugins.ManifestCacheSize = 0
		m := NewManager(OptionsFromConfig(cfg, quietLogger())...)
		_, ok := m.reader.(*ManifestReader)
		assert.True(t, ok)
	})
}

func resetShared(t *testing.T) {
	t.Helper()
	shared = &sharedHolder{}
	t.Cleanup(func() { shared = &sharedHolder{} })
}

func TestSharedInstance(t *testing.T) {
	t.Run("constructed once under concurrent access", func(t *testing.T) {
		resetShared(t)
		t.Setenv("PLUGMAN_LOG_LEVEL", "error")

		const workers = 16
		got := make([]*Manager, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got[i] = SharedInstance()
			}(i)
		}
		wg.Wait()

		require.NotNil(t, got[0])
		for _, m := range got[1:] {
			assert.Same(t, got[0], m)
		}
	})

	t.Run("configured before first use", func(t *testing.T) {
		resetShared(t)
		inst := newFakeInstantiator()
		discoverer, reader := staticSource(manifest("A"), manifest("B", "A"))

		require.NoError(t, ConfigureSharedInstance(
			WithLogger(quietLogger()),
			WithDiscoverer(discoverer),
			WithMetadataReader(reader),
			WithInstantiator(inst),
		))

		require.NoError(t, SharedInstance().LoadAllPlugins(context.Background()))
		assert.Equal(t, []string{"A", "B"}, instanceIDs(SharedInstance().Plugins()))

		err := ConfigureSharedInstance(WithDiscoveryConcurrency(8))
		assert.ErrorIs(t, err, ErrSharedInstanceBuilt)
	})

	t.Run("fresh holder yields a fresh manager", func(t *testing.T) {
		resetShared(t)
		first := SharedInstance()
		resetShared(t)
		assert.NotSame(t, first, SharedInstance())
	})
}
