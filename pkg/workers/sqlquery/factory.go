// Package sqlquery provides the SQL worker factory for registry integration.
package sqlquery

import (
	"github.com/lariat-run/lariat/pkg/protocol"
)

// Factory creates SQL query worker instances.
type Factory struct{}

// Create creates a new SQL query worker instance.
func (f *Factory) Create(id string, config map[string]any) (protocol.NodeWorker, error) {
	return NewWorker(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "sqlquery"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "SQL Query"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Executes one parameterized SQL statement and returns rows or affected count"
}

// Schema returns the JSON schema for SQL query configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"driver": map[string]any{
				"type":        "string",
				"description": "database/sql driver name, defaults to postgres",
			},
			"dsn": map[string]any{
				"type":        "string",
				"description": "Connection string, supplied pre-resolved by the caller",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "SQL statement with bind placeholders ($1, $2, ...)",
			},
			"params": map[string]any{
				"type":        "array",
				"description": "Bind parameters; strings support {var|default:x} placeholders",
			},
		},
		"required": []string{"dsn", "query"},
	}
}

// NewFactory creates a new factory instance.
func NewFactory() protocol.WorkerFactory {
	return &Factory{}
}
