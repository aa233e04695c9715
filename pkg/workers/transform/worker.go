// Package transform provides the templating worker for flow graph execution.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/template"
)

const (
	OutputPortMain = "main"
	InputPortMain  = "main"
)

// Worker renders a template over its resolved inputs and the shared
// execution variables. Three dialects are supported: simple {var}
// substitution, advanced substitution with inline defaults, and the full
// template engine with conditionals and loops.
type Worker struct {
	id   string
	tmpl string
	mode template.Mode
}

// NewWorker creates a new transform worker.
func NewWorker(id string, config map[string]any) (*Worker, error) {
	tmpl, ok := config["template"].(string)
	if !ok {
		return nil, errors.New("missing required field 'template'")
	}

	mode := template.ModeSimple
	if m, ok := config["mode"].(string); ok {
		mode = template.Mode(m)
	}

	switch mode {
	case template.ModeSimple, template.ModeAdvanced, template.ModeEngine:
	default:
		return nil, fmt.Errorf("unknown template mode %q", mode)
	}

	return &Worker{id: id, tmpl: tmpl, mode: mode}, nil
}

// ID returns the node ID.
func (w *Worker) ID() string {
	return w.id
}

// Type returns the worker type.
func (w *Worker) Type() string {
	return "transform"
}

// Execute renders the template. The data visible to placeholders is the
// union of shared variables and resolved inputs, inputs winning on clashes.
func (w *Worker) Execute(_ context.Context, inputs map[string]any, info protocol.ExecutionInfo) (map[string]any, error) {
	data := make(map[string]any, len(info.Variables)+len(inputs))

	for k, v := range info.Variables {
		data[k] = v
	}

	for k, v := range inputs {
		data[k] = v
	}

	result, err := template.RenderMode(w.mode, w.tmpl, data)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	return map[string]any{OutputPortMain: result}, nil
}
