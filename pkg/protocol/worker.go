// Package protocol defines the interfaces and contracts for pluggable node workers.
package protocol

import (
	"context"
)

// ExecutionInfo carries per-run, per-node identity and the narrow slices of
// run state a worker is allowed to touch.
type ExecutionInfo struct {
	RunID  string
	FlowID string
	NodeID string

	// Variables is a read snapshot of the shared execution variables taken
	// when the node was dispatched.
	Variables map[string]any

	// SetVariable writes a shared execution variable, last write wins.
	// Nil when the host does not expose shared variables.
	SetVariable func(key string, value any)

	// Stream receives incremental output chunks from long-running
	// generative workers. Nil when nobody is listening.
	Stream StreamSink
}

// StreamSink consumes one incremental output chunk.
type StreamSink func(chunk string)

// Emit forwards a chunk to the stream sink if one is attached.
func (e ExecutionInfo) Emit(chunk string) {
	if e.Stream != nil {
		e.Stream(chunk)
	}
}

// NodeWorker is the unit of per-node computation. Implementations are bound
// to their parsed configuration at construction and must hold no shared
// mutable state across invocations: each Execute call is a function of its
// inputs and info, aside from the external I/O it performs.
type NodeWorker interface {
	// Execute runs the node against its resolved inputs and returns the
	// values it emits, keyed by output port name.
	Execute(ctx context.Context, inputs map[string]any, info ExecutionInfo) (map[string]any, error)

	// ID returns the node id this worker instance is bound to.
	ID() string

	// Type returns the component type string this worker implements.
	Type() string
}

// WorkerFactory creates worker instances and provides metadata about the
// worker type.
type WorkerFactory interface {
	// Create builds a worker bound to the given node id and configuration.
	// Configuration errors surface here, before any dispatch.
	Create(id string, config map[string]any) (NodeWorker, error)

	// ID returns the unique component type string for this worker type.
	ID() string

	// Name returns the human-readable name for this worker type.
	Name() string

	// Description returns a description of what this worker does.
	Description() string

	// Schema returns the JSON schema for configuring this worker, nil when
	// the worker accepts arbitrary configuration.
	Schema() map[string]any
}
