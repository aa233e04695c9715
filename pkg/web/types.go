// Package web provides HTTP request and response types for the execution API.
package web

import (
	"time"

	"github.com/lariat-run/lariat/pkg/models"
)

// ExecuteFlowRequest represents the request body for starting a flow run.
// The flow arrives fully materialized; the engine does not load definitions
// itself. When Wait is set the request blocks until the run is terminal and
// the response carries the full result.
type ExecuteFlowRequest struct {
	Flow   *models.Flow   `json:"flow"   validate:"required"`
	Inputs map[string]any `json:"inputs,omitempty"`
	Wait   bool           `json:"wait,omitempty"`
}

// ExecutionResponse represents the externally visible state of one run.
type ExecutionResponse struct {
	RunID     string                        `json:"run_id"`
	FlowID    string                        `json:"flow_id,omitempty"`
	Status    models.RunStatus              `json:"status"`
	Nodes     map[string]*models.NodeResult `json:"nodes,omitempty"`
	Outputs   map[string]map[string]any     `json:"outputs,omitempty"`
	Error     string                        `json:"error,omitempty"`
	StartedAt time.Time                     `json:"started_at,omitzero"`
	EndedAt   time.Time                     `json:"ended_at,omitzero"`
}

// WorkerResponse describes one registered worker type.
type WorkerResponse struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// TransformStateResponse projects an execution state into its API shape.
func TransformStateResponse(state *models.ExecutionState) ExecutionResponse {
	response := ExecutionResponse{
		RunID:     state.RunID,
		FlowID:    state.FlowID,
		Status:    state.Status(),
		Nodes:     state.Results(),
		Outputs:   make(map[string]map[string]any),
		StartedAt: state.StartedAt(),
		EndedAt:   state.EndedAt(),
	}

	for nodeID, result := range response.Nodes {
		if result.Status == models.NodeStatusCompleted {
			response.Outputs[nodeID] = result.Outputs
		}
	}

	if errs := state.Errors(); len(errs) > 0 {
		response.Error = errs[len(errs)-1].Message
	}

	return response
}
