package plugins

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DescriptorStore holds the descriptors discovered by one load pass, in
// discovery order. It is not safe for concurrent mutation; the Manager only
// touches it from within a pass.
type DescriptorStore struct {
	descriptors []*Descriptor
	byID        map[string]*Descriptor
}

// NewDescriptorStore creates an empty store
func NewDescriptorStore() *DescriptorStore {
	return &DescriptorStore{
		byID: make(map[string]*Descriptor),
	}
}

// Add records a descriptor built from manifest. The first descriptor seen for
// an identifier wins; later duplicates are rejected and reported via the
// returned bool.
func (s *DescriptorStore) Add(location string, manifest *Manifest) (*Descriptor, bool) {
	if existing, ok := s.byID[manifest.ID]; ok {
		return existing, false
	}

	deps := make([]string, 0, len(manifest.Dependencies))
	seen := make(map[string]bool, len(manifest.Dependencies))
	for _, dep := range manifest.Dependencies {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}

	d := &Descriptor{
		ID:           manifest.ID,
		Dependencies: deps,
		Location:     location,
		Manifest:     manifest,
	}
	s.descriptors = append(s.descriptors, d)
	s.byID[d.ID] = d

	return d, true
}

// Get returns the descriptor for id
func (s *DescriptorStore) Get(id string) (*Descriptor, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// All returns the descriptors in discovery order
func (s *DescriptorStore) All() []*Descriptor {
	return append([]*Descriptor(nil), s.descriptors...)
}

// Len returns the number of stored descriptors
func (s *DescriptorStore) Len() int {
	return len(s.descriptors)
}

// Reset empties the store
func (s *DescriptorStore) Reset() {
	s.descriptors = nil
	s.byID = make(map[string]*Descriptor)
}

// DiscoverDescriptors runs the discovery phase: it asks discoverer for bundle
// locations, reads their metadata with up to concurrency parallel reads and
// fills a new store in discovery order. Bundles whose metadata cannot be read
// are dropped and returned as MetadataErrors; only a failure of the
// discoverer itself (or ctx cancellation) is returned as an error.
func DiscoverDescriptors(ctx context.Context, discoverer BundleDiscoverer, reader MetadataReader, concurrency int, log *logrus.Entry) (*DescriptorStore, []*MetadataError, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	locations, err := discoverer.DiscoverBundles(ctx)
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("Discovered %d candidate bundle(s)", len(locations))

	manifests := make([]*Manifest, len(locations))
	readErrs := make([]error, len(locations))

	eg, egCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}
	for i, location := range locations {
		eg.Go(func() error {
			manifest, err := reader.ReadMetadata(egCtx, location)
			if err != nil {
				if ctxErr := egCtx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return err
				}
				readErrs[i] = err
				return nil
			}
			// Custom readers may skip validation
			if err := checkManifest(manifest); err != nil {
				readErrs[i] = err
				return nil
			}
			manifests[i] = manifest
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	store := NewDescriptorStore()
	var metadataErrs []*MetadataError

	for i, location := range locations {
		if readErrs[i] != nil {
			merr := &MetadataError{Location: location, Err: readErrs[i]}
			log.WithField("location", location).Warnf("Dropping bundle: %v", readErrs[i])
			metadataErrs = append(metadataErrs, merr)
			continue
		}

		d, added := store.Add(location, manifests[i])
		if !added {
			log.WithFields(logrus.Fields{
				"plugin_id": d.ID,
				"location":  location,
				"kept":      d.Location,
			}).Warn("Duplicate plugin identifier, keeping first discovered bundle")
		}
	}

	return store, metadataErrs, nil
}
