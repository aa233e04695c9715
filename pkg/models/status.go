package models

// NodeRunStatus defines the possible states of one node within a run.
type NodeRunStatus string

const (
	NodeStatusPending   NodeRunStatus = "pending"
	NodeStatusWaiting   NodeRunStatus = "waiting"
	NodeStatusReady     NodeRunStatus = "ready"
	NodeStatusRunning   NodeRunStatus = "running"
	NodeStatusCompleted NodeRunStatus = "completed"
	NodeStatusFailed    NodeRunStatus = "failed"
	NodeStatusSkipped   NodeRunStatus = "skipped"
)

// IsTerminal reports whether the node has reached a final state.
func (s NodeRunStatus) IsTerminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed || s == NodeStatusSkipped
}

// RunStatus defines the lifecycle state of a whole run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run has reached a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}
