package plugins

import (
	"context"
	"time"
)

// Instance is the principal object produced from a plugin bundle
type Instance = any

// Activator is implemented by principal objects that want a hook invoked
// right after instantiation. Instances without it are loaded as-is.
type Activator interface {
	Activate(ctx context.Context) error
}

// Descriptor describes a discovered plugin bundle prior to loading
type Descriptor struct {
	ID           string    // Unique identifier within a load pass
	Dependencies []string  // Identifiers this plugin requires
	Location     string    // Bundle location (directory)
	Manifest     *Manifest // Parsed metadata the descriptor was built from
}

// LoadState is the per-descriptor state within a load pass
type LoadState string

const (
	LoadStateDiscovered LoadState = "discovered"
	LoadStateEligible   LoadState = "eligible"
	LoadStateLoaded     LoadState = "loaded"
	LoadStateActivated  LoadState = "activated"
	LoadStateIneligible LoadState = "ineligible"
	LoadStateFailed     LoadState = "failed"
)

// Entry is a successfully loaded plugin held by the Registry
type Entry struct {
	ID         string
	Instance   Instance
	Descriptor *Descriptor
	LoadedAt   time.Time
}

// BundleDiscoverer supplies candidate bundle locations from the search paths
type BundleDiscoverer interface {
	DiscoverBundles(ctx context.Context) ([]string, error)
}

// MetadataReader reads the declared identifier and dependencies of a bundle
type MetadataReader interface {
	ReadMetadata(ctx context.Context, location string) (*Manifest, error)
}

// Instantiator produces the principal object of a bundle
type Instantiator interface {
	Instantiate(ctx context.Context, d *Descriptor) (Instance, error)
}

// InstantiatorFunc adapts a function to the Instantiator interface
type InstantiatorFunc func(ctx context.Context, d *Descriptor) (Instance, error)

// Instantiate calls f(ctx, d)
func (f InstantiatorFunc) Instantiate(ctx context.Context, d *Descriptor) (Instance, error) {
	return f(ctx, d)
}

// LoadReport summarises one load pass
type LoadReport struct {
	PassID     string
	StartedAt  time.Time
	Duration   time.Duration
	Discovered int
	Order      []string             // Resolved load order
	States     map[string]LoadState // Final state per discovered identifier
	Excluded   map[string]ExclusionReason
	Loaded     []string    // Identifiers loaded during this pass, in order
	Skipped    []string    // Identifiers already registered by an earlier pass
	Cache      *CacheStats // Manifest cache activity during discovery, if caching
	Err        error
}

// State returns the recorded state for id, or "" if id was never discovered
func (r *LoadReport) State(id string) LoadState {
	if r == nil {
		return ""
	}
	return r.States[id]
}

func (r *LoadReport) setState(id string, state LoadState) {
	if r == nil {
		return
	}
	if r.States == nil {
		r.States = make(map[string]LoadState)
	}
	r.States[id] = state
}
