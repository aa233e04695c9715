// Package llm provides the LLM worker factories for registry integration.
package llm

import (
	"github.com/lariat-run/lariat/pkg/protocol"
)

// Factory creates LLM worker instances for one provider.
type Factory struct {
	provider    provider
	description string
}

// Create creates a new LLM worker instance.
func (f *Factory) Create(id string, config map[string]any) (protocol.NodeWorker, error) {
	return newWorker(id, config, f.provider)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "llm:" + f.provider.name()
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "LLM (" + f.provider.name() + ")"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return f.description
}

// Schema returns the JSON schema shared by all LLM worker configurations.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt template; supports {var|default:x} placeholders",
			},
			"model":       map[string]any{"type": "string"},
			"temperature": map[string]any{"type": "number"},
			"max_tokens":  map[string]any{"type": "number"},
			"endpoint":    map[string]any{"type": "string"},
			"api_key":     map[string]any{"type": "string"},
			"stream": map[string]any{
				"type":        "boolean",
				"description": "Token-streaming response mode",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
			},
		},
		"required": []string{"prompt"},
	}
}

// NewOpenAIFactory creates the OpenAI chat completion worker factory.
func NewOpenAIFactory() protocol.WorkerFactory {
	return &Factory{
		provider:    openAIProvider{},
		description: "Calls the OpenAI chat completions API, full or streaming",
	}
}

// NewAnthropicFactory creates the Anthropic messages worker factory.
func NewAnthropicFactory() protocol.WorkerFactory {
	return &Factory{
		provider:    anthropicProvider{},
		description: "Calls the Anthropic messages API, full or streaming",
	}
}

// NewOllamaFactory creates the local Ollama worker factory.
func NewOllamaFactory() protocol.WorkerFactory {
	return &Factory{
		provider:    ollamaProvider{},
		description: "Calls a local Ollama server, full or streaming",
	}
}
