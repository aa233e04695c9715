package models

import "time"

// TaskMessage is the wire payload for one node dispatched over the task
// queue. Inputs are fully resolved by the orchestrator before publishing, so
// a consumer can execute the node without access to the rest of the run.
type TaskMessage struct {
	TaskID        string         `json:"task_id"`
	RunID         string         `json:"run_id"`
	FlowID        string         `json:"flow_id"`
	NodeID        string         `json:"node_id"`
	NodeType      string         `json:"node_type"`
	Config        map[string]any `json:"config,omitempty"`
	Inputs        map[string]any `json:"inputs,omitempty"`
	PendingDeps   []string       `json:"pending_deps,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	CreatedAt     time.Time      `json:"created_at"`
	TTLSeconds    int            `json:"ttl_seconds,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// Expired reports whether the task outlived its TTL. Expired tasks are
// routed straight to the dead-letter queue instead of being executed.
func (t *TaskMessage) Expired(now time.Time) bool {
	if t.TTLSeconds <= 0 {
		return false
	}

	return now.After(t.CreatedAt.Add(time.Duration(t.TTLSeconds) * time.Second))
}

// TaskResult is published by a consumer after a delivery attempt reaches a
// terminal outcome, and correlated back into the run by task id.
type TaskResult struct {
	TaskID     string         `json:"task_id"`
	RunID      string         `json:"run_id"`
	NodeID     string         `json:"node_id"`
	Status     NodeRunStatus  `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	WorkerID   string         `json:"worker_id,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}
