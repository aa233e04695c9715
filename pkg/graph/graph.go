package graph

import (
	"github.com/lariat-run/lariat/pkg/models"
)

// PortRef identifies one node output port, the source side of an edge.
type PortRef struct {
	Node string
	Port string
}

// nodeEntry is the per-node bookkeeping the graph maintains.
type nodeEntry struct {
	id     string
	typ    string
	config map[string]any
}

// DependencyGraph is the in-memory representation of a flow's nodes and
// port-qualified edges. It is built once per run from the flow definition
// and never mutated afterwards; run-time status lives in the scheduler.
type DependencyGraph struct {
	order        []string // insertion order, drives deterministic traversal
	nodes        map[string]*nodeEntry
	dependencies map[string]map[string]struct{}
	dependents   map[string]map[string]struct{}
	routing      map[string]map[string]PortRef // target node -> target port -> source
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:        make(map[string]*nodeEntry),
		dependencies: make(map[string]map[string]struct{}),
		dependents:   make(map[string]map[string]struct{}),
		routing:      make(map[string]map[string]PortRef),
	}
}

// FromFlow builds and validates the dependency graph for a flow definition.
func FromFlow(flow *models.Flow) (*DependencyGraph, error) {
	g := New()

	for _, node := range flow.Nodes {
		if err := g.AddNode(node.ID, node.Type, node.Config); err != nil {
			return nil, err
		}
	}

	for _, edge := range flow.Edges {
		if err := g.AddEdge(edge.SourceNode, edge.SourcePort, edge.TargetNode, edge.TargetPort); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	return g, nil
}

// AddNode declares a node. The id must be unique within the graph.
func (g *DependencyGraph) AddNode(id, nodeType string, config map[string]any) error {
	if _, exists := g.nodes[id]; exists {
		return newValidationError(id, "", ErrDuplicateNode)
	}

	g.nodes[id] = &nodeEntry{id: id, typ: nodeType, config: config}
	g.order = append(g.order, id)
	g.dependencies[id] = make(map[string]struct{})
	g.dependents[id] = make(map[string]struct{})
	g.routing[id] = make(map[string]PortRef)

	return nil
}

// AddEdge records a port-qualified connection. Both endpoints must already
// be declared, and a target port accepts at most one incoming edge; fan-in
// to the same port is rejected rather than silently picking a winner.
func (g *DependencyGraph) AddEdge(sourceNode, sourcePort, targetNode, targetPort string) error {
	if _, ok := g.nodes[sourceNode]; !ok {
		return newValidationError(sourceNode, sourcePort, ErrUnknownNode)
	}

	if _, ok := g.nodes[targetNode]; !ok {
		return newValidationError(targetNode, targetPort, ErrUnknownNode)
	}

	if _, taken := g.routing[targetNode][targetPort]; taken {
		return newValidationError(targetNode, targetPort, ErrDuplicatePort)
	}

	g.dependencies[targetNode][sourceNode] = struct{}{}
	g.dependents[sourceNode][targetNode] = struct{}{}
	g.routing[targetNode][targetPort] = PortRef{Node: sourceNode, Port: sourcePort}

	return nil
}

// dfs colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// Validate checks the graph for cycles and dangling dependency references.
// Traversal follows node insertion order, which only affects which node a
// cycle is reported at.
func (g *DependencyGraph) Validate() error {
	for id, deps := range g.dependencies {
		for dep := range deps {
			if _, ok := g.nodes[dep]; !ok {
				return newValidationError(id, "", ErrUnknownNode)
			}
		}
	}

	color := make(map[string]int, len(g.nodes))

	var visit func(id string) error

	visit = func(id string) error {
		color[id] = gray

		for dep := range g.dependents[id] {
			switch color[dep] {
			case gray:
				return newValidationError(dep, "", ErrCyclicDependency)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		color[id] = black

		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}

	return nil
}

// ReadyNodes returns every node whose full dependency set is contained in
// the completed set and which is not itself completed. Pure function of the
// graph structure and the argument; results follow insertion order.
func (g *DependencyGraph) ReadyNodes(completed map[string]struct{}) []string {
	ready := make([]string, 0)

	for _, id := range g.order {
		if _, done := completed[id]; done {
			continue
		}

		satisfied := true

		for dep := range g.dependencies[id] {
			if _, done := completed[dep]; !done {
				satisfied = false

				break
			}
		}

		if satisfied {
			ready = append(ready, id)
		}
	}

	return ready
}

// ExecutionGroups computes parallel batches by repeatedly peeling off nodes
// whose dependencies are all in earlier groups (Kahn's algorithm). Meant for
// static analysis and estimation; dispatch uses ReadyNodes against live
// status so partial failure is handled correctly.
func (g *DependencyGraph) ExecutionGroups() [][]string {
	indegree := make(map[string]int, len(g.nodes))
	for id, deps := range g.dependencies {
		indegree[id] = len(deps)
	}

	groups := make([][]string, 0)
	placed := 0

	for placed < len(g.nodes) {
		group := make([]string, 0)

		for _, id := range g.order {
			if indegree[id] == 0 {
				group = append(group, id)
			}
		}

		if len(group) == 0 {
			// Remaining nodes form a cycle; Validate reports this properly.
			break
		}

		for _, id := range group {
			indegree[id] = -1

			for dep := range g.dependents[id] {
				indegree[dep]--
			}
		}

		groups = append(groups, group)
		placed += len(group)
	}

	return groups
}

// Nodes returns all node ids in insertion order.
func (g *DependencyGraph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)

	return out
}

// NodeType returns the declared component type of a node.
func (g *DependencyGraph) NodeType(id string) (string, bool) {
	entry, ok := g.nodes[id]
	if !ok {
		return "", false
	}

	return entry.typ, true
}

// NodeConfig returns the static configuration of a node.
func (g *DependencyGraph) NodeConfig(id string) map[string]any {
	entry, ok := g.nodes[id]
	if !ok {
		return nil
	}

	return entry.config
}

// Dependencies returns the ids of the nodes whose output the given node needs.
func (g *DependencyGraph) Dependencies(id string) []string {
	return sortedByOrder(g.order, g.dependencies[id])
}

// Dependents returns the ids of the nodes that need the given node's output.
func (g *DependencyGraph) Dependents(id string) []string {
	return sortedByOrder(g.order, g.dependents[id])
}

// TransitiveDependents returns every node reachable downstream of the given
// node, the set a failure's skip propagation covers.
func (g *DependencyGraph) TransitiveDependents(id string) []string {
	seen := make(map[string]struct{})

	var walk func(string)

	walk = func(current string) {
		for dep := range g.dependents[current] {
			if _, ok := seen[dep]; ok {
				continue
			}

			seen[dep] = struct{}{}
			walk(dep)
		}
	}

	walk(id)

	return sortedByOrder(g.order, seen)
}

// Routing returns the port routing table for a node: target port name to the
// upstream (node, port) that feeds it.
func (g *DependencyGraph) Routing(id string) map[string]PortRef {
	out := make(map[string]PortRef, len(g.routing[id]))
	for port, ref := range g.routing[id] {
		out[port] = ref
	}

	return out
}

// Len returns the number of declared nodes.
func (g *DependencyGraph) Len() int {
	return len(g.nodes)
}

func sortedByOrder(order []string, set map[string]struct{}) []string {
	out := make([]string, 0, len(set))

	for _, id := range order {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}

	return out
}
