package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultManifestName is the metadata file every bundle directory carries
const DefaultManifestName = "plugin.yaml"

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Manifest is the on-disk metadata of a plugin bundle
type Manifest struct {
	ID           string            `yaml:"id"`                  // Unique ID (e.g., "com.example.spellcheck")
	Name         string            `yaml:"name,omitempty"`      // Display name
	Version      string            `yaml:"version,omitempty"`   // Informational only
	Description  string            `yaml:"description,omitempty"`
	Author       string            `yaml:"author,omitempty"`
	Principal    string            `yaml:"principal,omitempty"` // Factory name or exported symbol
	Library      string            `yaml:"library,omitempty"`   // Shared object, relative to the bundle
	Dependencies []string          `yaml:"dependencies,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
}

// ValidationError represents a manifest validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	return v.Field + ": " + v.Message
}

// LoadManifest loads and parses a plugin manifest from a file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &manifest, nil
}

// ValidateManifest checks the fields the load protocol depends on
func ValidateManifest(manifest *Manifest) []ValidationError {
	var errs []ValidationError

	if manifest.ID == "" {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: "Plugin ID is required",
		})
	} else if !identifierRegex.MatchString(manifest.ID) {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("Invalid plugin ID: %q", manifest.ID),
		})
	}

	for i, dep := range manifest.Dependencies {
		if strings.TrimSpace(dep) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("dependencies[%d]", i),
				Message: "Dependency identifier must not be empty",
			})
		}
	}

	if manifest.Library != "" && filepath.IsAbs(manifest.Library) {
		errs = append(errs, ValidationError{
			Field:   "library",
			Message: "Library path must be relative to the bundle",
		})
	}

	return errs
}

// ManifestReader reads YAML manifests from bundle directories
type ManifestReader struct {
	// FileName overrides DefaultManifestName
	FileName string
}

// NewManifestReader creates a reader for the given manifest file name
func NewManifestReader(fileName string) *ManifestReader {
	if fileName == "" {
		fileName = DefaultManifestName
	}
	return &ManifestReader{FileName: fileName}
}

// ReadMetadata implements MetadataReader
func (r *ManifestReader) ReadMetadata(ctx context.Context, location string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := r.FileName
	if name == "" {
		name = DefaultManifestName
	}

	manifest, err := LoadManifest(filepath.Join(location, name))
	if err != nil {
		return nil, err
	}

	if err := checkManifest(manifest); err != nil {
		return nil, err
	}

	return manifest, nil
}

// checkManifest wraps every validation failure of manifest in ErrInvalidManifest
func checkManifest(manifest *Manifest) error {
	if manifest == nil {
		return fmt.Errorf("%w: reader returned no manifest", ErrInvalidManifest)
	}

	verrs := ValidateManifest(manifest)
	if len(verrs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(verrs))
	for _, v := range verrs {
		msgs = append(msgs, v.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(msgs, "; "))
}

// IsManifestMissing reports whether err was caused by an absent manifest file
func IsManifestMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
