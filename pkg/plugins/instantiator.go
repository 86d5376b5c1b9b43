package plugins

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	goplugin "plugin"
	"sync"
)

// DefaultPrincipalSymbol is looked up in shared objects whose manifest does not name one
const DefaultPrincipalSymbol = "NewPlugin"

// Factory constructs a principal object for a descriptor
type Factory func(ctx context.Context, d *Descriptor) (Instance, error)

// FactoryInstantiator builds principal objects from constructors registered
// in-process, keyed by the manifest's principal name (or the plugin ID when
// the manifest names none).
type FactoryInstantiator struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewFactoryInstantiator creates an instantiator with no factories
func NewFactoryInstantiator() *FactoryInstantiator {
	return &FactoryInstantiator{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name
func (f *FactoryInstantiator) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("factory name is required")
	}
	if factory == nil {
		return fmt.Errorf("cannot register nil factory for %s", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.factories[name]; exists {
		return fmt.Errorf("factory already registered: %s", name)
	}
	f.factories[name] = factory
	return nil
}

// Has reports whether a factory is registered under name
func (f *FactoryInstantiator) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.factories[name]
	return exists
}

// Instantiate implements Instantiator
func (f *FactoryInstantiator) Instantiate(ctx context.Context, d *Descriptor) (Instance, error) {
	name := principalName(d)

	f.mu.RLock()
	factory, exists := f.factories[name]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, name)
	}

	instance, err := factory(ctx, d)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("factory %s returned no instance", name)
	}
	return instance, nil
}

func principalName(d *Descriptor) string {
	if d.Manifest != nil && d.Manifest.Principal != "" {
		return d.Manifest.Principal
	}
	return d.ID
}

// SharedObjectInstantiator opens the Go plugin named by the manifest's
// library field and calls its exported constructor. Supported constructor
// signatures are func() any, func() (any, error) and
// func(context.Context) (any, error).
type SharedObjectInstantiator struct {
	open func(path string) (*goplugin.Plugin, error)
}

// NewSharedObjectInstantiator creates an instantiator backed by plugin.Open
func NewSharedObjectInstantiator() *SharedObjectInstantiator {
	return &SharedObjectInstantiator{open: goplugin.Open}
}

// Instantiate implements Instantiator
func (s *SharedObjectInstantiator) Instantiate(ctx context.Context, d *Descriptor) (Instance, error) {
	if d.Manifest == nil || d.Manifest.Library == "" {
		return nil, fmt.Errorf("plugin %s declares no library", d.ID)
	}

	path := filepath.Join(d.Location, d.Manifest.Library)
	lib, err := s.open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	symbol := d.Manifest.Principal
	if symbol == "" {
		symbol = DefaultPrincipalSymbol
	}

	sym, err := lib.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("library %s has no symbol %s: %w", path, symbol, err)
	}

	return callConstructor(ctx, sym, symbol)
}

func callConstructor(ctx context.Context, sym any, symbol string) (Instance, error) {
	var (
		instance Instance
		err      error
	)

	switch ctor := sym.(type) {
	case func() any:
		instance = ctor()
	case func() (any, error):
		instance, err = ctor()
	case func(context.Context) (any, error):
		instance, err = ctor(ctx)
	default:
		return nil, fmt.Errorf("invalid %s signature: %T", symbol, sym)
	}

	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New(symbol + " returned no instance")
	}
	return instance, nil
}

// BundleInstantiator dispatches to the shared object instantiator for
// bundles that ship a library and to registered factories otherwise.
type BundleInstantiator struct {
	Factories     *FactoryInstantiator
	SharedObjects *SharedObjectInstantiator
}

// NewBundleInstantiator creates an instantiator with an empty factory table
func NewBundleInstantiator() *BundleInstantiator {
	return &BundleInstantiator{
		Factories:     NewFactoryInstantiator(),
		SharedObjects: NewSharedObjectInstantiator(),
	}
}

// Instantiate implements Instantiator
func (b *BundleInstantiator) Instantiate(ctx context.Context, d *Descriptor) (Instance, error) {
	if d.Manifest != nil && d.Manifest.Library != "" && b.SharedObjects != nil {
		return b.SharedObjects.Instantiate(ctx, d)
	}
	if b.Factories == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, principalName(d))
	}
	return b.Factories.Instantiate(ctx, d)
}
