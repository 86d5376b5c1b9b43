package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/plugman/pkg/config"
)

// DirectoryDiscoverer finds bundles as sub-directories of the search
// directories that contain a manifest file.
type DirectoryDiscoverer struct {
	dirs         []string
	manifestName string
	log          *logrus.Logger
}

// NewDirectoryDiscoverer creates a discoverer over dirs, searched in order
func NewDirectoryDiscoverer(dirs []string, manifestName string, log *logrus.Logger) *DirectoryDiscoverer {
	if log == nil {
		log = logrus.New()
	}
	if manifestName == "" {
		manifestName = DefaultManifestName
	}

	return &DirectoryDiscoverer{
		dirs:         dirs,
		manifestName: manifestName,
		log:          log,
	}
}

// Dirs returns the configured search directories
func (d *DirectoryDiscoverer) Dirs() []string {
	return append([]string(nil), d.dirs...)
}

// DiscoverBundles implements BundleDiscoverer. Missing or unreadable search
// directories are skipped; the returned order is search-directory order, then
// entry name.
func (d *DirectoryDiscoverer) DiscoverBundles(ctx context.Context) ([]string, error) {
	var bundles []string
	seen := make(map[string]bool)

	for _, dir := range d.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := os.Stat(dir); os.IsNotExist(err) {
			d.log.Debugf("Plugin directory does not exist: %s", dir)
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			d.log.Warnf("Failed to read plugin directory %s: %v", dir, err)
			continue
		}

		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			bundleDir := filepath.Join(dir, entry.Name())
			if _, err := os.Stat(filepath.Join(bundleDir, d.manifestName)); err != nil {
				if IsManifestMissing(err) {
					d.log.Debugf("Skipping %s: no %s", bundleDir, d.manifestName)
				} else {
					d.log.Warnf("Skipping %s: %v", bundleDir, err)
				}
				continue
			}

			key, err := filepath.Abs(bundleDir)
			if err != nil {
				key = bundleDir
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			bundles = append(bundles, bundleDir)
		}
	}

	return bundles, nil
}

// StaticDiscoverer returns a fixed list of bundle locations
type StaticDiscoverer []string

// DiscoverBundles implements BundleDiscoverer
func (s StaticDiscoverer) DiscoverBundles(ctx context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// StaticMetadataReader serves manifests held in memory, keyed by location.
// Hosts that embed their plugins use it with a StaticDiscoverer.
type StaticMetadataReader map[string]*Manifest

// ReadMetadata implements MetadataReader
func (s StaticMetadataReader) ReadMetadata(ctx context.Context, location string) (*Manifest, error) {
	manifest, ok := s[location]
	if !ok {
		return nil, fmt.Errorf("no manifest for %s: %w", location, os.ErrNotExist)
	}
	if err := checkManifest(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// GetDefaultPluginDirectories returns the standard plugin search directories
func GetDefaultPluginDirectories() []string {
	return config.DefaultSearchDirs()
}
