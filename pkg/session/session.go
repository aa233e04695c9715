// Package session wraps the engine for interactive, human-in-the-loop runs:
// per-node progress callbacks, mid-run user input and single-shot restarts
// over one logical connection.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lariat-run/lariat/pkg/engine"
	"github.com/lariat-run/lariat/pkg/models"
	"github.com/lariat-run/lariat/pkg/registry"
)

var (
	// ErrNoActiveRun is returned when input or cancellation targets a
	// session with no run in flight.
	ErrNoActiveRun = errors.New("no active run in this session")

	// ErrInputAlreadyProvided is returned when input for a node was already
	// delivered and not yet consumed.
	ErrInputAlreadyProvided = errors.New("input already provided for this node")

	// errSuperseded aborts suspended nodes of a run that was replaced by a
	// session restart.
	errSuperseded = errors.New("run superseded by a newer session turn")
)

// Callbacks are the progress notifications a session forwards to its owner,
// typically bridged to a WebSocket. All fields are optional. They fire from
// node goroutines and must be safe for concurrent use.
type Callbacks struct {
	OnNodeStart       func(nodeID string)
	OnNodeComplete    func(nodeID string, outputs map[string]any)
	OnNodeError       func(nodeID string, err error)
	OnStreamingUpdate func(nodeID, chunk string)
}

// Result is the terminal snapshot of the session's most recent run.
type Result struct {
	RunID   string
	Status  models.RunStatus
	Outputs map[string]map[string]any
	Error   string
}

// Session drives interactive runs over one connection. A session executes
// one run at a time; starting a new run cancels the previous one and resets
// all suspension state, while the session itself stays alive.
type Session struct {
	logger       *slog.Logger
	orchestrator *engine.Orchestrator
	callbacks    Callbacks

	mu      sync.Mutex
	runID   string
	waiters map[string]chan map[string]any
	done    chan struct{}
	result  *Result
}

// New creates a session with its own orchestrator. Additional engine options
// (dispatcher, config) are applied before the session wires its callbacks.
func New(logger *slog.Logger, reg *registry.Registry, callbacks Callbacks, opts ...engine.Option) *Session {
	s := &Session{
		logger:    logger.With("module", "session"),
		callbacks: callbacks,
		waiters:   make(map[string]chan map[string]any),
	}

	opts = append(opts,
		engine.WithHooks(s.hooks()),
		engine.WithInputSource(s),
		engine.WithReportFunc(s.record),
	)

	s.orchestrator = engine.New(logger, reg, opts...)

	return s
}

// Start launches a fresh run for the flow and returns its run id. Any run
// still in flight is cancelled first; suspended nodes of the old run are
// released with an error and its callbacks are silenced.
func (s *Session) Start(ctx context.Context, flow *models.Flow, initialInputs map[string]any) string {
	s.mu.Lock()

	if previous := s.runID; previous != "" {
		s.orchestrator.Cancel(previous)
	}

	for nodeID, ch := range s.waiters {
		close(ch)
		delete(s.waiters, nodeID)
	}

	s.done = make(chan struct{})
	s.result = nil

	// The lock is held across the async start so hooks from the new run
	// cannot observe a stale session run id.
	runID := s.orchestrator.RunAsync(ctx, flow, initialInputs)
	s.runID = runID
	s.mu.Unlock()

	s.logger.Info("Session run started", "run_id", runID, "flow_id", flow.ID)

	return runID
}

// ProvideInput delivers user input to a node suspended on requires_input.
// Input may arrive before the node reaches its suspension point; it is
// buffered until the node consumes it.
func (s *Session) ProvideInput(nodeID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID == "" {
		return ErrNoActiveRun
	}

	ch, ok := s.waiters[nodeID]
	if !ok {
		ch = make(chan map[string]any, 1)
		s.waiters[nodeID] = ch
	}

	select {
	case ch <- data:
		return nil
	default:
		return ErrInputAlreadyProvided
	}
}

// Cancel stops the current run from dispatching further nodes. In-flight
// invocations finish on their own.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	if runID == "" {
		return false
	}

	return s.orchestrator.Cancel(runID)
}

// Wait blocks until the current run reaches a terminal state.
func (s *Session) Wait(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil, ErrNoActiveRun
	}

	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()

		return s.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State exposes the live execution state of the current run, if any.
func (s *Session) State() (*models.ExecutionState, bool) {
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	if runID == "" {
		return nil, false
	}

	return s.orchestrator.State(runID)
}

// WaitForInput implements the engine's input source. It blocks the calling
// node's goroutine until ProvideInput delivers data for the node, the node
// context expires or the run is superseded.
func (s *Session) WaitForInput(ctx context.Context, runID, nodeID string) (map[string]any, error) {
	s.mu.Lock()

	if runID != s.runID {
		s.mu.Unlock()

		return nil, errSuperseded
	}

	ch, ok := s.waiters[nodeID]
	if !ok {
		ch = make(chan map[string]any, 1)
		s.waiters[nodeID] = ch
	}
	s.mu.Unlock()

	s.logger.Info("Node suspended waiting for user input", "run_id", runID, "node_id", nodeID)

	select {
	case data, ok := <-ch:
		if !ok {
			return nil, errSuperseded
		}

		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hooks bridges engine callbacks to the session's own, dropping events from
// runs this session no longer owns.
func (s *Session) hooks() engine.Hooks {
	return engine.Hooks{
		OnNodeStart: func(runID, nodeID string) {
			if s.owns(runID) && s.callbacks.OnNodeStart != nil {
				s.callbacks.OnNodeStart(nodeID)
			}
		},
		OnNodeComplete: func(runID, nodeID string, outputs map[string]any) {
			if s.owns(runID) && s.callbacks.OnNodeComplete != nil {
				s.callbacks.OnNodeComplete(nodeID, outputs)
			}
		},
		OnNodeError: func(runID, nodeID string, err error) {
			if s.owns(runID) && s.callbacks.OnNodeError != nil {
				s.callbacks.OnNodeError(nodeID, err)
			}
		},
		OnStreamingUpdate: func(runID, nodeID, chunk string) {
			if s.owns(runID) && s.callbacks.OnStreamingUpdate != nil {
				s.callbacks.OnStreamingUpdate(nodeID, chunk)
			}
		},
	}
}

func (s *Session) owns(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return runID == s.runID
}

// record stores the terminal snapshot and releases Wait.
func (s *Session) record(runID string, status models.RunStatus, outputs map[string]map[string]any, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID != s.runID {
		return
	}

	s.result = &Result{RunID: runID, Status: status, Outputs: outputs, Error: errMsg}

	if s.done != nil {
		close(s.done)
	}
}
