// Package httpcall provides the HTTP call worker factory for registry integration.
package httpcall

import (
	"github.com/lariat-run/lariat/pkg/protocol"
)

// Factory creates HTTP call worker instances.
type Factory struct{}

// Create creates a new HTTP call worker instance.
func (f *Factory) Create(id string, config map[string]any) (protocol.NodeWorker, error) {
	return NewWorker(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "httpcall"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "HTTP Call"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Performs an outbound HTTP request with retry, backoff and pluggable auth"
}

// Schema returns the JSON schema for HTTP call configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL; supports {var|default:x} placeholders",
			},
			"method": map[string]any{
				"type": "string",
				"enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body; supports {var|default:x} placeholders",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number"},
					"delay":    map[string]any{"type": "number"},
				},
			},
			"auth": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":     map[string]any{"type": "string", "enum": []string{"bearer", "basic", "api_key"}},
					"token":    map[string]any{"type": "string"},
					"username": map[string]any{"type": "string"},
					"password": map[string]any{"type": "string"},
					"header":   map[string]any{"type": "string"},
					"key":      map[string]any{"type": "string"},
				},
			},
		},
		"required": []string{"url"},
	}
}

// NewFactory creates a new factory instance.
func NewFactory() protocol.WorkerFactory {
	return &Factory{}
}
