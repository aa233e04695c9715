// Package llm provides workers that call LLM provider HTTP APIs, in full or
// token-streaming response mode.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/template"
)

const (
	OutputPortMain = "main"
	InputPortMain  = "main"
)

// Config defines the configuration shared by all LLM workers. API keys
// arrive pre-resolved; the engine performs no secret lookup.
type Config struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Endpoint    string  `json:"endpoint"`
	APIKey      string  `json:"api_key"`
	Stream      bool    `json:"stream"`
	Timeout     int     `json:"timeout"`
}

// provider abstracts one LLM HTTP API: request shape, full-response parsing
// and stream parsing.
type provider interface {
	// name is the provider identifier used in the worker type string.
	name() string

	// defaults fills provider-specific model/endpoint defaults.
	defaults(cfg *Config)

	// buildRequest produces the HTTP request for one completion call.
	buildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error)

	// parseResponse extracts the generated text from a full response body.
	parseResponse(body io.Reader) (string, error)

	// parseStream consumes a streaming response body, forwarding each text
	// delta to emit and returning the concatenated result.
	parseStream(body io.Reader, emit func(chunk string)) (string, error)
}

// Worker calls one LLM provider. The prompt supports {var|default:x}
// placeholders resolved from inputs and shared variables.
type Worker struct {
	id       string
	config   Config
	provider provider
}

func newWorker(id string, config map[string]any, p provider) (*Worker, error) {
	prompt, ok := config["prompt"].(string)
	if !ok {
		return nil, errors.New("missing required field 'prompt'")
	}

	cfg := Config{
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   512,
		Timeout:     120,
	}

	if model, ok := config["model"].(string); ok {
		cfg.Model = model
	}

	if t, ok := config["temperature"].(float64); ok {
		cfg.Temperature = t
	}

	if mt, ok := config["max_tokens"].(float64); ok {
		cfg.MaxTokens = int(mt)
	}

	if endpoint, ok := config["endpoint"].(string); ok {
		cfg.Endpoint = endpoint
	}

	if key, ok := config["api_key"].(string); ok {
		cfg.APIKey = key
	}

	if stream, ok := config["stream"].(bool); ok {
		cfg.Stream = stream
	}

	if timeout, ok := config["timeout"].(float64); ok {
		cfg.Timeout = int(timeout)
	}

	p.defaults(&cfg)

	return &Worker{id: id, config: cfg, provider: p}, nil
}

// ID returns the node ID.
func (w *Worker) ID() string {
	return w.id
}

// Type returns the worker type.
func (w *Worker) Type() string {
	return "llm:" + w.provider.name()
}

// Execute renders the prompt, performs the provider call and returns the
// generated text. In streaming mode each delta is forwarded through the
// execution info's stream sink as it arrives.
func (w *Worker) Execute(ctx context.Context, inputs map[string]any, info protocol.ExecutionInfo) (map[string]any, error) {
	data := make(map[string]any, len(info.Variables)+len(inputs))

	for k, v := range info.Variables {
		data[k] = v
	}

	for k, v := range inputs {
		data[k] = v
	}

	prompt := template.RenderAdvanced(w.config.Prompt, data)

	req, err := w.provider.buildRequest(ctx, w.config, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", w.provider.name(), err)
	}

	client := &http.Client{Timeout: time.Duration(w.config.Timeout) * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", w.provider.name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, fmt.Errorf("%s error: status %s: %s", w.provider.name(), resp.Status, string(raw))
	}

	var text string

	if w.config.Stream {
		text, err = w.provider.parseStream(resp.Body, info.Emit)
	} else {
		text, err = w.provider.parseResponse(resp.Body)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", w.provider.name(), err)
	}

	return map[string]any{
		OutputPortMain: map[string]any{
			"text":  text,
			"model": w.config.Model,
		},
	}, nil
}
