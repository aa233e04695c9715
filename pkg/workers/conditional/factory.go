// Package conditional provides the branching worker factory for registry integration.
package conditional

import (
	"github.com/lariat-run/lariat/pkg/protocol"
)

// Factory creates conditional worker instances.
type Factory struct{}

// Create creates a new conditional worker instance.
func (f *Factory) Create(id string, config map[string]any) (protocol.NodeWorker, error) {
	return NewWorker(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "conditional"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Conditional"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Routes the main input to a true or false output based on a comparator"
}

// Schema returns the JSON schema for conditional configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operator": map[string]any{
				"type": "string",
				"enum": []string{
					OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
					OpRegex, OpGT, OpGTE, OpLT, OpLTE, OpJSONPath, OpIn, OpExpression,
				},
				"description": "Comparator applied to the main input",
			},
			"value": map[string]any{
				"description": "Comparison value; array for 'in', pattern string for 'regex'",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "gjson path for the 'jsonpath' operator",
			},
			"expression": map[string]any{
				"type":        "string",
				"description": "JavaScript expression for the 'expression' operator; sees 'input' and 'value'",
			},
			"case_sensitive": map[string]any{
				"type":        "boolean",
				"description": "String comparisons are case sensitive unless set to false",
			},
		},
		"required": []string{"operator"},
	}
}

// NewFactory creates a new factory instance.
func NewFactory() protocol.WorkerFactory {
	return &Factory{}
}
