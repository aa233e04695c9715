package models

import (
	"sync"
	"time"
)

// NodeResult represents the outcome of one node execution.
type NodeResult struct {
	NodeID     string         `json:"node_id"`
	Status     NodeRunStatus  `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitzero"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
}

// ExecutionError is one entry in a run's ordered error log.
type ExecutionError struct {
	NodeID    string    `json:"node_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionSummary aggregates terminal node counts for a finished run.
type ExecutionSummary struct {
	RunID     string        `json:"run_id"`
	Status    RunStatus     `json:"status"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionState is the mutable, run-scoped record of every node's status,
// outputs and errors. The orchestrator is the only writer; node completions
// land concurrently, so all access goes through the mutex. Once the run
// reaches a terminal status further mutations are ignored.
type ExecutionState struct {
	RunID  string
	FlowID string

	mu        sync.RWMutex
	status    RunStatus
	startedAt time.Time
	endedAt   time.Time
	results   map[string]*NodeResult
	outputs   map[string]map[string]any
	variables map[string]any
	errors    []ExecutionError
}

// NewExecutionState creates the state for a fresh run. The variables map is
// copied so the caller's flow definition stays untouched.
func NewExecutionState(runID, flowID string, variables map[string]any) *ExecutionState {
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	return &ExecutionState{
		RunID:     runID,
		FlowID:    flowID,
		status:    RunStatusPending,
		results:   make(map[string]*NodeResult),
		outputs:   make(map[string]map[string]any),
		variables: vars,
	}
}

// Start transitions the run to running and stamps the start time.
func (s *ExecutionState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != RunStatusPending {
		return
	}

	s.status = RunStatusRunning
	s.startedAt = time.Now().UTC()
}

// Finish freezes the run with the given terminal status. Calling Finish on
// an already terminal state is a no-op, so a cancellation that races the
// natural end of the run keeps whichever status landed first.
func (s *ExecutionState) Finish(status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return
	}

	s.status = status
	s.endedAt = time.Now().UTC()
}

// Status returns the current run status.
func (s *ExecutionState) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// StartedAt returns the run start time.
func (s *ExecutionState) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.startedAt
}

// EndedAt returns the run end time, zero while the run is in flight.
func (s *ExecutionState) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.endedAt
}

// RecordResult stores a node's terminal result and, on success, its raw
// output payload for downstream port resolution.
func (s *ExecutionState) RecordResult(result *NodeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return
	}

	s.results[result.NodeID] = result

	if result.Status == NodeStatusCompleted {
		s.outputs[result.NodeID] = result.Outputs
	}
}

// Result returns the recorded result for a node.
func (s *ExecutionState) Result(nodeID string) (*NodeResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[nodeID]

	return r, ok
}

// Results returns a snapshot of all recorded node results.
func (s *ExecutionState) Results() map[string]*NodeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*NodeResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}

	return out
}

// Outputs returns the raw output payload a completed node produced.
func (s *ExecutionState) Outputs(nodeID string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outputs[nodeID]

	return o, ok
}

// SetVariable writes a shared execution variable, last write wins.
func (s *ExecutionState) SetVariable(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return
	}

	s.variables[key] = value
}

// Variables returns a snapshot of the shared execution variables.
func (s *ExecutionState) Variables() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}

	return out
}

// AppendError adds an entry to the ordered error log.
func (s *ExecutionState) AppendError(nodeID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors = append(s.errors, ExecutionError{
		NodeID:    nodeID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// Errors returns the ordered error log.
func (s *ExecutionState) Errors() []ExecutionError {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ExecutionError, len(s.errors))
	copy(out, s.errors)

	return out
}

// FailureCount returns how many nodes ended in failed status.
func (s *ExecutionState) FailureCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0

	for _, r := range s.results {
		if r.Status == NodeStatusFailed {
			count++
		}
	}

	return count
}

// Summary aggregates the run outcome once it is terminal.
func (s *ExecutionState) Summary() ExecutionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := ExecutionSummary{
		RunID:  s.RunID,
		Status: s.status,
	}

	for _, r := range s.results {
		switch r.Status {
		case NodeStatusCompleted:
			summary.Completed++
		case NodeStatusFailed:
			summary.Failed++
		case NodeStatusSkipped:
			summary.Skipped++
		}
	}

	if !s.startedAt.IsZero() && !s.endedAt.IsZero() {
		summary.Duration = s.endedAt.Sub(s.startedAt)
	}

	return summary
}
