// Package graph builds and validates the in-memory dependency graph derived
// from a flow definition.
package graph

import (
	"errors"
	"fmt"
)

// Standard graph validation error types.
var (
	// ErrDuplicateNode indicates a node id was declared twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrUnknownNode indicates an edge endpoint or dependency references an undeclared node.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDuplicatePort indicates two edges target the same input port.
	ErrDuplicatePort = errors.New("duplicate target port")

	// ErrCyclicDependency indicates the graph contains at least one cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")
)

// ValidationError wraps a graph construction or validation failure with the
// node (and port, where relevant) it was detected at.
type ValidationError struct {
	NodeID string
	Port   string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("graph validation failed at node %q port %q: %v", e.NodeID, e.Port, e.Err)
	}

	return fmt.Sprintf("graph validation failed at node %q: %v", e.NodeID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(nodeID, port string, err error) *ValidationError {
	return &ValidationError{NodeID: nodeID, Port: port, Err: err}
}
