package plugins

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// saveManifest writes manifest as YAML to path
func saveManifest(t *testing.T, manifest *Manifest, path string) {
	t.Helper()
	data, err := yaml.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// rawReader returns whatever its map holds, without validation
type rawReader map[string]*Manifest

func (r rawReader) ReadMetadata(ctx context.Context, location string) (*Manifest, error) {
	return r[location], nil
}

func desc(id string, deps ...string) *Descriptor {
	return &Descriptor{
		ID:           id,
		Dependencies: deps,
		Location:     "/bundles/" + id,
		Manifest:     &Manifest{ID: id, Dependencies: deps},
	}
}

// staticSource builds a discoverer and reader serving manifests in the given order
func staticSource(manifests ...*Manifest) (StaticDiscoverer, StaticMetadataReader) {
	discoverer := make(StaticDiscoverer, 0, len(manifests))
	reader := make(StaticMetadataReader, len(manifests))
	for i, m := range manifests {
		location := "/bundles/" + m.ID
		if _, taken := reader[location]; taken {
			location = location + "#" + string(rune('a'+i))
		}
		discoverer = append(discoverer, location)
		reader[location] = m
	}
	return discoverer, reader
}

// testPlugin is a principal object that records its lifecycle
type testPlugin struct {
	id          string
	activateErr error
	onActivate  func(ctx context.Context) error
	activated   bool
}

// activatingPlugin implements Activator
type activatingPlugin struct {
	*testPlugin
}

func (p activatingPlugin) Activate(ctx context.Context) error {
	p.activated = true
	if p.onActivate != nil {
		return p.onActivate(ctx)
	}
	return p.activateErr
}

// fakeInstantiator builds testPlugins and records the order of calls
type fakeInstantiator struct {
	mu         sync.Mutex
	calls      []string
	failOn     map[string]error
	activators map[string]activatingPlugin
	panicOn    string
}

func newFakeInstantiator() *fakeInstantiator {
	return &fakeInstantiator{
		failOn:     make(map[string]error),
		activators: make(map[string]activatingPlugin),
	}
}

func (f *fakeInstantiator) withActivator(id string, activateErr error) *fakeInstantiator {
	f.activators[id] = activatingPlugin{&testPlugin{id: id, activateErr: activateErr}}
	return f
}

func (f *fakeInstantiator) Instantiate(ctx context.Context, d *Descriptor) (Instance, error) {
	f.mu.Lock()
	f.calls = append(f.calls, d.ID)
	f.mu.Unlock()

	if d.ID == f.panicOn {
		panic("constructor exploded")
	}
	if err, ok := f.failOn[d.ID]; ok {
		return nil, err
	}
	if a, ok := f.activators[d.ID]; ok {
		return a, nil
	}
	return &testPlugin{id: d.ID}, nil
}

func (f *fakeInstantiator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var errBoom = errors.New("boom")

func instanceIDs(instances []Instance) []string {
	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		switch p := inst.(type) {
		case *testPlugin:
			ids = append(ids, p.id)
		case activatingPlugin:
			ids = append(ids, p.id)
		}
	}
	return ids
}
