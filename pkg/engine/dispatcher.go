package engine

import (
	"context"
)

// Task describes one node invocation handed to a dispatcher. Inputs are
// fully resolved before dispatch so a remote consumer can execute the node
// in isolation.
type Task struct {
	RunID     string
	FlowID    string
	NodeID    string
	NodeType  string
	Config    map[string]any
	Inputs    map[string]any
	Variables map[string]any
}

// Dispatcher executes one task and returns the node's outputs. The engine
// ships with in-process execution; a queue-backed Dispatcher offloads
// execution to consumer processes instead.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) (map[string]any, error)
}
