// Package passthrough provides a worker that forwards its inputs unchanged.
package passthrough

import (
	"context"

	"github.com/lariat-run/lariat/pkg/protocol"
)

const (
	OutputPortMain = "main"
	InputPortMain  = "main"
)

// Worker copies its resolved inputs to its output ports. Useful as a flow
// entry point, for fan-out junctions and in tests.
type Worker struct {
	id string
}

// NewWorker creates a new pass-through worker.
func NewWorker(id string, _ map[string]any) (*Worker, error) {
	return &Worker{id: id}, nil
}

// ID returns the node ID.
func (w *Worker) ID() string {
	return w.id
}

// Type returns the worker type.
func (w *Worker) Type() string {
	return "passthrough"
}

// Execute mirrors every input port onto an output port of the same name.
// With no inputs at all it still emits an empty main port so downstream
// routing has something to bind to.
func (w *Worker) Execute(_ context.Context, inputs map[string]any, _ protocol.ExecutionInfo) (map[string]any, error) {
	if len(inputs) == 0 {
		return map[string]any{OutputPortMain: nil}, nil
	}

	outputs := make(map[string]any, len(inputs))
	for port, value := range inputs {
		outputs[port] = value
	}

	return outputs, nil
}
