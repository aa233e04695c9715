// Package models defines the core domain models for node-based flow execution.
package models

// Flow is a fully materialized node/edge graph handed to the engine for one
// run. The engine treats it as immutable; versioning, publishing and storage
// belong to the caller.
type Flow struct {
	ID        string         `json:"id"          validate:"required"`
	Name      string         `json:"name"`
	Nodes     []*Node        `json:"nodes"       validate:"required,min=1,dive"`
	Edges     []*Edge        `json:"edges"       validate:"dive"`
	Variables map[string]any `json:"variables,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Node is a declared unit of work inside a flow. Type is resolved against
// the worker registry; Config carries the static parameters for that worker.
// Position fields are UI-only and ignored by the engine.
type Node struct {
	ID        string         `json:"id"     validate:"required"`
	Type      string         `json:"type"   validate:"required"`
	Name      string         `json:"name,omitempty"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x,omitempty"`
	PositionY int            `json:"position_y,omitempty"`
}

// Edge is a directed, port-qualified data connection: the value the source
// node emits on SourcePort becomes the target node's input on TargetPort.
type Edge struct {
	SourceNode string `json:"source_node" validate:"required"`
	SourcePort string `json:"source_port" validate:"required"`
	TargetNode string `json:"target_node" validate:"required"`
	TargetPort string `json:"target_port" validate:"required"`
}

// NodeByID returns the declared node with the given id.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}

// ParsePortID parses a port ID in format "{node_id}:{port_name}" into components.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}
