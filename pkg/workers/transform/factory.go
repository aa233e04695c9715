// Package transform provides the templating worker factory for registry integration.
package transform

import (
	"github.com/lariat-run/lariat/pkg/protocol"
)

// Factory creates transform worker instances.
type Factory struct{}

// Create creates a new transform worker instance.
func (f *Factory) Create(id string, config map[string]any) (protocol.NodeWorker, error) {
	return NewWorker(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "transform"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Transform"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Renders a template over inputs and shared variables"
}

// Schema returns the JSON schema for transform configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template": map[string]any{
				"type":        "string",
				"description": "Template body; dialect depends on mode",
				"examples": []string{
					"Hello {name}",
					"Hello {name|default:world}",
					`{{if .premium}}VIP: {{.name}}{{else}}{{.name}}{{end}}`,
				},
			},
			"mode": map[string]any{
				"type":        "string",
				"enum":        []string{"simple", "advanced", "engine"},
				"description": "simple: {var} substitution; advanced: {var|default:x}; engine: full template engine",
			},
		},
		"required": []string{"template"},
	}
}

// NewFactory creates a new factory instance.
func NewFactory() protocol.WorkerFactory {
	return &Factory{}
}
