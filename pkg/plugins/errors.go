package plugins

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a plugin identifier is not in the registry
	ErrNotFound = errors.New("plugin not found")

	// ErrLoadInProgress is returned when a load pass is started while another one runs
	ErrLoadInProgress = errors.New("plugin load pass already in progress")

	// ErrInstantiation classifies failures to construct a principal object
	ErrInstantiation = errors.New("plugin instantiation failed")

	// ErrActivation classifies failures of the activation hook
	ErrActivation = errors.New("plugin activation failed")

	// ErrInvalidManifest is returned when bundle metadata is missing required fields
	ErrInvalidManifest = errors.New("invalid plugin manifest")

	// ErrNoFactory is returned when no constructor is registered for a principal name
	ErrNoFactory = errors.New("no factory registered for principal")
)

// Phase identifies the step of the load protocol that failed
type Phase string

const (
	PhaseInstantiate Phase = "instantiate"
	PhaseActivate    Phase = "activate"
)

// LoadError reports the first failure of a load pass
type LoadError struct {
	ID    string
	Phase Phase
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin %s: %s failed: %v", e.ID, e.Phase, e.Err)
}

// Unwrap exposes both the phase sentinel and the underlying cause
func (e *LoadError) Unwrap() []error {
	sentinel := ErrInstantiation
	if e.Phase == PhaseActivate {
		sentinel = ErrActivation
	}
	return []error{sentinel, e.Err}
}

// MetadataError reports a bundle whose metadata could not be read.
// It is logged and the bundle is dropped; it never aborts a pass.
type MetadataError struct {
	Location string
	Err      error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to read plugin metadata at %s: %v", e.Location, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// ExclusionReason explains why a descriptor was left out of the load order
type ExclusionReason string

const (
	ExcludedMissingDependency    ExclusionReason = "missing-dependency"
	ExcludedDependencyCycle      ExclusionReason = "dependency-cycle"
	ExcludedIneligibleDependency ExclusionReason = "ineligible-dependency"
)
