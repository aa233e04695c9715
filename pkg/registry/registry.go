// Package registry maps component type strings to node worker factories.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownWorkerType indicates a node declares a component type no factory
// was registered for.
var ErrUnknownWorkerType = errors.New("worker type not registered")

// Registry holds the worker factories available to the engine. It is
// explicitly constructed and injected into whatever hosts the engine; there
// is no package-level instance.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.WorkerFactory
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.WorkerFactory),
	}
}

// RegisterWorker adds a worker factory, replacing any previous factory
// registered under the same type string.
func (r *Registry) RegisterWorker(factory protocol.WorkerFactory) {
	r.factories[factory.ID()] = factory
	r.logger.Debug("Registered worker factory", "type", factory.ID())
}

// Create builds a worker for the given component type, validating the
// configuration against the factory's schema first.
func (r *Registry) Create(workerType, nodeID string, config map[string]any) (protocol.NodeWorker, error) {
	factory, ok := r.factories[workerType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkerType, workerType)
	}

	if err := r.validateConfig(factory, config); err != nil {
		return nil, fmt.Errorf("invalid config for worker type %q: %w", workerType, err)
	}

	return factory.Create(nodeID, config)
}

// Has reports whether a factory is registered for the given type.
func (r *Registry) Has(workerType string) bool {
	_, ok := r.factories[workerType]

	return ok
}

// AvailableWorkers returns all registered factories.
func (r *Registry) AvailableWorkers() []protocol.WorkerFactory {
	out := make([]protocol.WorkerFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		out = append(out, factory)
	}

	return out
}

// validateConfig checks a node configuration against the factory's JSON
// schema when one is declared.
func (r *Registry) validateConfig(factory protocol.WorkerFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	configBytes, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(configBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("config does not match schema: %v", messages)
	}

	return nil
}
