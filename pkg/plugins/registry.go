package plugins

import (
	"fmt"
	"sync"
	"time"
)

// Registry holds successfully loaded plugins in load order.
// Reads are safe for concurrent use; writes happen only from a load pass.
type Registry struct {
	entries []*Entry
	byID    map[string]*Entry
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Entry),
	}
}

// RecordLoaded appends a fully constructed and activated instance
func (r *Registry) RecordLoaded(id string, instance Instance, d *Descriptor) error {
	if id == "" {
		return fmt.Errorf("cannot record plugin with empty identifier")
	}
	if instance == nil {
		return fmt.Errorf("cannot record nil instance for plugin %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("plugin already registered: %s", id)
	}

	entry := &Entry{
		ID:         id,
		Instance:   instance,
		Descriptor: d,
		LoadedAt:   time.Now(),
	}
	r.entries = append(r.entries, entry)
	r.byID[id] = entry
	return nil
}

// Lookup returns the instance registered for id
func (r *Registry) Lookup(id string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.byID[id]
	if !exists {
		return nil, false
	}
	return entry.Instance, true
}

// Get retrieves a plugin entry by ID
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, nil
}

// Has checks if a plugin is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.byID[id]
	return exists
}

// Instances returns a snapshot of the loaded instances in load order
func (r *Registry) Instances() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Instance, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.Instance)
	}
	return result
}

// Entries returns a snapshot of the registry entries in load order
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, *entry)
	}
	return result
}

// IDs returns the registered identifiers in load order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.ID)
	}
	return result
}

// Count returns the number of registered plugins
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
