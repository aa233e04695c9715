package web

import (
	"sync"

	"github.com/lariat-run/lariat/pkg/models"
)

// RunStore keeps the terminal record of finished runs so the API can answer
// status queries after the engine has released the live state. In-memory
// only; durable run history belongs to the CRUD layer, not the engine.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]ExecutionResponse
}

// NewRunStore creates an empty store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]ExecutionResponse)}
}

// Report satisfies the engine's per-run persistence callback.
func (s *RunStore) Report(runID string, status models.RunStatus, outputs map[string]map[string]any, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[runID] = ExecutionResponse{
		RunID:   runID,
		Status:  status,
		Outputs: outputs,
		Error:   errMsg,
	}
}

// Get returns the terminal record of a finished run.
func (s *RunStore) Get(runID string) (ExecutionResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]

	return r, ok
}
