package engine

import (
	"context"

	"github.com/lariat-run/lariat/pkg/models"
)

// Hooks are the progress callbacks the orchestrator invokes as a run
// advances. All fields are optional; nil hooks are skipped. Hooks are
// called from node goroutines and must be safe for concurrent use.
type Hooks struct {
	OnNodeStart       func(runID, nodeID string)
	OnNodeComplete    func(runID, nodeID string, outputs map[string]any)
	OnNodeError       func(runID, nodeID string, err error)
	OnStreamingUpdate func(runID, nodeID, chunk string)
	OnRunFinished     func(runID string, status models.RunStatus)
}

func (h Hooks) nodeStart(runID, nodeID string) {
	if h.OnNodeStart != nil {
		h.OnNodeStart(runID, nodeID)
	}
}

func (h Hooks) nodeComplete(runID, nodeID string, outputs map[string]any) {
	if h.OnNodeComplete != nil {
		h.OnNodeComplete(runID, nodeID, outputs)
	}
}

func (h Hooks) nodeError(runID, nodeID string, err error) {
	if h.OnNodeError != nil {
		h.OnNodeError(runID, nodeID, err)
	}
}

func (h Hooks) streamingUpdate(runID, nodeID, chunk string) {
	if h.OnStreamingUpdate != nil {
		h.OnStreamingUpdate(runID, nodeID, chunk)
	}
}

func (h Hooks) runFinished(runID string, status models.RunStatus) {
	if h.OnRunFinished != nil {
		h.OnRunFinished(runID, status)
	}
}

// InputSource supplies mid-run user input for nodes that declare
// requires_input in their configuration. WaitForInput blocks the calling
// node's goroutine only; independent branches keep executing.
type InputSource interface {
	WaitForInput(ctx context.Context, runID, nodeID string) (map[string]any, error)
}

// ReportFunc is the narrow per-run persistence callback: the engine reports
// terminal status, outputs and error text back to the caller and never
// touches storage itself.
type ReportFunc func(runID string, status models.RunStatus, outputs map[string]map[string]any, errMsg string)
