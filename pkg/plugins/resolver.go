package plugins

import (
	"fmt"

	"ocm.software/open-component-model/bindings/go/dag"
)

// Resolution is the outcome of dependency resolution over a descriptor set
type Resolution struct {
	// Order lists eligible descriptors; every descriptor appears after all of
	// its dependencies, unconstrained descriptors keep discovery order.
	Order []*Descriptor
	// Excluded maps ineligible identifiers to the reason they were left out
	Excluded map[string]ExclusionReason
}

// IDs returns the identifiers of the resolved order
func (r *Resolution) IDs() []string {
	ids := make([]string, 0, len(r.Order))
	for _, d := range r.Order {
		ids = append(ids, d.ID)
	}
	return ids
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	eligible
	ineligible
)

// Resolve computes the load order for descriptors, given in discovery order.
// If an identifier repeats, the first descriptor carrying it is used.
//
// A descriptor is eligible when every dependency is present and eligible and
// it is not part of a dependency cycle. Ineligible descriptors are silently
// excluded; the returned error only signals an internal inconsistency.
func Resolve(descriptors []*Descriptor) (*Resolution, error) {
	byID := make(map[string]*Descriptor, len(descriptors))
	position := make(map[string]int, len(descriptors))
	unique := make([]*Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if _, dup := byID[d.ID]; dup {
			continue
		}
		byID[d.ID] = d
		position[d.ID] = len(unique)
		unique = append(unique, d)
	}

	state := make(map[string]visitState, len(descriptors))
	onCycle := make(map[string]bool)
	missing := make(map[string]bool)
	var stack []string

	var visit func(d *Descriptor) bool
	visit = func(d *Descriptor) bool {
		switch state[d.ID] {
		case eligible:
			return true
		case ineligible:
			return false
		case visiting:
			return false
		}

		state[d.ID] = visiting
		stack = append(stack, d.ID)

		ok := true
		for _, dep := range d.Dependencies {
			depDesc, present := byID[dep]
			if !present {
				missing[d.ID] = true
				ok = false
				continue
			}

			if state[dep] == visiting {
				// Everything on the stack from dep upwards forms the cycle
				for i := len(stack) - 1; i >= 0; i-- {
					onCycle[stack[i]] = true
					if stack[i] == dep {
						break
					}
				}
				ok = false
				continue
			}

			if !visit(depDesc) {
				ok = false
			}
		}

		stack = stack[:len(stack)-1]
		if ok {
			state[d.ID] = eligible
		} else {
			state[d.ID] = ineligible
		}
		return ok
	}

	for _, d := range unique {
		visit(d)
	}

	res := &Resolution{
		Excluded: make(map[string]ExclusionReason),
	}

	graph := dag.NewDirectedAcyclicGraph[int]()
	for _, d := range unique {
		if state[d.ID] != eligible {
			switch {
			case onCycle[d.ID]:
				res.Excluded[d.ID] = ExcludedDependencyCycle
			case missing[d.ID]:
				res.Excluded[d.ID] = ExcludedMissingDependency
			default:
				res.Excluded[d.ID] = ExcludedIneligibleDependency
			}
			continue
		}

		if err := graph.AddVertex(position[d.ID]); err != nil {
			return nil, fmt.Errorf("failed to add %s to dependency graph: %w", d.ID, err)
		}
	}

	for _, d := range unique {
		if state[d.ID] != eligible {
			continue
		}
		for _, dep := range d.Dependencies {
			if err := graph.AddEdge(position[d.ID], position[dep]); err != nil {
				return nil, fmt.Errorf("failed to add dependency %s -> %s: %w", d.ID, dep, err)
			}
		}
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to order plugins: %w", err)
	}

	res.Order = make([]*Descriptor, 0, len(order))
	for _, pos := range order {
		res.Order = append(res.Order, unique[pos])
	}

	return res, nil
}
