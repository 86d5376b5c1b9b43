package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/platinummonkey/plugman/pkg/httputil"
	"github.com/platinummonkey/plugman/pkg/plugins"
)

// Graph directions
const (
	DirectionDependencies = "dependencies"
	DirectionDependents   = "dependents"
	DirectionBoth         = "both"
)

// Node types
const (
	NodeFocus      = "focus"
	NodeDependency = "dependency"
	NodeDependent  = "dependent"
	NodePlugin     = "plugin"
	NodeMissing    = "missing" // declared but never discovered
)

// GraphNode is a node in Cytoscape.js format
type GraphNode struct {
	Data GraphNodeData `json:"data"`
}

// GraphNodeData describes one plugin of the dependency graph
type GraphNodeData struct {
	ID      string            `json:"id"`
	Name    string            `json:"name,omitempty"`
	Version string            `json:"version,omitempty"`
	Type    string            `json:"type"`
	State   plugins.LoadState `json:"state,omitempty"`
}

// GraphEdge is an edge in Cytoscape.js format, pointing from a dependent to
// its dependency
type GraphEdge struct {
	Data GraphEdgeData `json:"data"`
}

// GraphEdgeData contains edge data for Cytoscape.js
type GraphEdgeData struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "direct" or "transitive"
}

// Graph is the dependency graph of the discovered plugins
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// getGraph handles GET /graph
// Query parameters:
//   - id: focus on one plugin (default: whole graph)
//   - direction: "dependencies", "dependents", or "both" (default: "dependencies")
//   - depth: max traversal depth from the focus (default: unlimited)
func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	direction := query.Get("direction")
	if direction == "" {
		direction = DirectionDependencies
	}
	switch direction {
	case DirectionDependencies, DirectionDependents, DirectionBoth:
	default:
		httputil.WriteBadRequest(w, fmt.Sprintf("invalid direction %q", direction))
		return
	}

	maxDepth := -1
	if d := query.Get("depth"); d != "" {
		depth, err := strconv.Atoi(d)
		if err != nil || depth < 1 {
			httputil.WriteBadRequest(w, "depth must be a positive integer")
			return
		}
		maxDepth = depth
	}

	b := newGraphBuilder(s.manager.Descriptors(), s.manager.LastReport())

	focus := query.Get("id")
	if focus == "" {
		httputil.WriteSuccess(w, b.full())
		return
	}
	if _, ok := b.byID[focus]; !ok {
		httputil.WriteNotFoundError(w, fmt.Sprintf("plugin %s was not discovered", focus))
		return
	}
	httputil.WriteSuccess(w, b.around(focus, direction, maxDepth))
}

type graphBuilder struct {
	descriptors []*plugins.Descriptor
	byID        map[string]*plugins.Descriptor
	dependents  map[string][]string
	report      *plugins.LoadReport

	graph Graph
	nodes map[string]bool
	edges map[string]bool
}

func newGraphBuilder(descriptors []*plugins.Descriptor, report *plugins.LoadReport) *graphBuilder {
	b := &graphBuilder{
		descriptors: descriptors,
		byID:        make(map[string]*plugins.Descriptor, len(descriptors)),
		dependents:  make(map[string][]string),
		report:      report,
		graph: Graph{
			Nodes: make([]GraphNode, 0),
			Edges: make([]GraphEdge, 0),
		},
		nodes: make(map[string]bool),
		edges: make(map[string]bool),
	}

	for _, d := range descriptors {
		b.byID[d.ID] = d
		for _, dep := range d.Dependencies {
			b.dependents[dep] = append(b.dependents[dep], d.ID)
		}
	}
	return b
}

// full returns every discovered plugin and every declared dependency
func (b *graphBuilder) full() Graph {
	for _, d := range b.descriptors {
		b.addNode(d.ID, NodePlugin)
	}
	for _, d := range b.descriptors {
		for _, dep := range d.Dependencies {
			b.addNode(dep, NodeDependency)
			b.addEdge(d.ID, dep, "direct")
		}
	}
	return b.graph
}

// around returns the neighbourhood of focus up to maxDepth hops (-1 for no limit)
func (b *graphBuilder) around(focus, direction string, maxDepth int) Graph {
	b.addNode(focus, NodeFocus)

	if direction == DirectionDependencies || direction == DirectionBoth {
		b.walk(focus, maxDepth, 0, func(id string) []string {
			if d, ok := b.byID[id]; ok {
				return d.Dependencies
			}
			return nil
		}, func(from, to, edgeType string) {
			b.addNode(to, NodeDependency)
			b.addEdge(from, to, edgeType)
		})
	}

	if direction == DirectionDependents || direction == DirectionBoth {
		b.walk(focus, maxDepth, 0, func(id string) []string {
			return b.dependents[id]
		}, func(from, to, edgeType string) {
			b.addNode(to, NodeDependent)
			b.addEdge(to, from, edgeType)
		})
	}

	return b.graph
}

func (b *graphBuilder) walk(id string, maxDepth, depth int, next func(string) []string, visit func(from, to, edgeType string)) {
	if maxDepth >= 0 && depth >= maxDepth {
		return
	}

	edgeType := "direct"
	if depth > 0 {
		edgeType = "transitive"
	}

	for _, neighbour := range next(id) {
		seen := b.nodes[neighbour]
		visit(id, neighbour, edgeType)
		if !seen {
			b.walk(neighbour, maxDepth, depth+1, next, visit)
		}
	}
}

func (b *graphBuilder) addNode(id, nodeType string) {
	if b.nodes[id] {
		return
	}
	b.nodes[id] = true

	data := GraphNodeData{ID: id, Type: nodeType, State: b.report.State(id)}
	d, ok := b.byID[id]
	if !ok {
		data.Type = NodeMissing
	} else if m := d.Manifest; m != nil {
		data.Name = m.Name
		data.Version = m.Version
	}
	b.graph.Nodes = append(b.graph.Nodes, GraphNode{Data: data})
}

func (b *graphBuilder) addEdge(source, target, edgeType string) {
	edgeID := source + "->" + target
	if b.edges[edgeID] {
		return
	}
	b.edges[edgeID] = true

	b.graph.Edges = append(b.graph.Edges, GraphEdge{
		Data: GraphEdgeData{
			ID:     edgeID,
			Source: source,
			Target: target,
			Type:   edgeType,
		},
	})
}
