// Package passthrough provides the pass-through worker factory for registry integration.
package passthrough

import (
	"github.com/lariat-run/lariat/pkg/protocol"
)

// Factory creates pass-through worker instances.
type Factory struct{}

// Create creates a new pass-through worker instance.
func (f *Factory) Create(id string, config map[string]any) (protocol.NodeWorker, error) {
	return NewWorker(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "passthrough"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Pass-through"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Forwards inputs to outputs unchanged; entry points and junctions"
}

// Schema returns the JSON schema for pass-through configuration.
func (f *Factory) Schema() map[string]any {
	return nil
}

// NewFactory creates a new factory instance.
func NewFactory() protocol.WorkerFactory {
	return &Factory{}
}
