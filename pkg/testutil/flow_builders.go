// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"
	"github.com/lariat-run/lariat/pkg/models"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:        uuid.New().String(),
		Type:      "passthrough",
		Name:      "Test Node",
		Config:    map[string]any{},
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// CreateTestFlow creates a test Flow with default values that can be overridden.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	flow := &models.Flow{
		ID:   uuid.New().String(),
		Name: "Test Flow",
		Nodes: []*models.Node{
			CreateTestNode(WithID("start")),
		},
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithNodes replaces the flow's nodes.
func WithNodes(nodes ...*models.Node) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Nodes = nodes
	}
}

// WithEdges replaces the flow's edges.
func WithEdges(edges ...*models.Edge) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Edges = edges
	}
}

// WithVariables sets the flow's shared variables.
func WithVariables(vars map[string]any) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Variables = vars
	}
}

// Connect builds an edge from one node's output port to another node's input
// port.
func Connect(sourceNode, sourcePort, targetNode, targetPort string) *models.Edge {
	return &models.Edge{
		SourceNode: sourceNode,
		SourcePort: sourcePort,
		TargetNode: targetNode,
		TargetPort: targetPort,
	}
}

// LinearFlow builds a flow whose nodes form a single chain connected through
// "main" ports, in the order given.
func LinearFlow(id string, nodes ...*models.Node) *models.Flow {
	edges := make([]*models.Edge, 0, len(nodes))

	for i := 1; i < len(nodes); i++ {
		edges = append(edges, Connect(nodes[i-1].ID, "main", nodes[i].ID, "main"))
	}

	return &models.Flow{
		ID:    id,
		Name:  "Test Flow " + id,
		Nodes: nodes,
		Edges: edges,
	}
}
