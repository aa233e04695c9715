// Package engine drives flow runs: it builds and validates the dependency
// graph, schedules ready nodes, resolves their inputs, dispatches execution
// and aggregates results into the run's execution state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lariat-run/lariat/pkg/graph"
	"github.com/lariat-run/lariat/pkg/models"
	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/registry"
	"github.com/lariat-run/lariat/pkg/scheduler"
)

// Orchestrator runs flows. It is explicitly constructed and injected into
// whatever process hosts the engine; there is no package-level instance.
type Orchestrator struct {
	logger     *slog.Logger
	registry   *registry.Registry
	dispatcher Dispatcher
	config     Config
	hooks      Hooks
	inputs     InputSource
	report     ReportFunc
	validate   *validator.Validate

	mu   sync.Mutex
	runs map[string]*activeRun
}

type activeRun struct {
	state     *models.ExecutionState
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDispatcher offloads node execution to the given dispatcher instead of
// running workers in-process.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithConfig overrides the engine configuration.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) { o.config = c }
}

// WithHooks attaches progress callbacks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithInputSource attaches the provider of mid-run user input.
func WithInputSource(s InputSource) Option {
	return func(o *Orchestrator) { o.inputs = s }
}

// WithReportFunc attaches the per-run persistence callback.
func WithReportFunc(r ReportFunc) Option {
	return func(o *Orchestrator) { o.report = r }
}

// New creates an orchestrator bound to a worker registry.
func New(logger *slog.Logger, reg *registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:   logger,
		registry: reg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		runs:     make(map[string]*activeRun),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.config = o.config.withDefaults()

	return o
}

// nodeOutcome is one node invocation's terminal result, delivered to the
// main loop over the results channel.
type nodeOutcome struct {
	nodeID   string
	outputs  map[string]any
	err      error
	started  time.Time
	finished time.Time
}

// Run executes a flow to completion and returns its execution state. The
// state is always returned, also on validation failure; the error return is
// non-nil only for pre-dispatch failures (invalid definition, cyclic graph,
// unknown worker type or bad node config). Node-level failures never
// surface as an error here: they are captured in the state and drive the
// terminal run status instead.
func (o *Orchestrator) Run(ctx context.Context, flow *models.Flow, initialInputs map[string]any) (*models.ExecutionState, error) {
	return o.runWithID(ctx, generateRunID(), flow, initialInputs)
}

// RunAsync starts a flow run in the background and returns its run id
// immediately. The run survives the caller's context; use Cancel to stop it
// and State or a ReportFunc to observe it.
func (o *Orchestrator) RunAsync(ctx context.Context, flow *models.Flow, initialInputs map[string]any) string {
	runID := generateRunID()

	go func() {
		_, _ = o.runWithID(context.WithoutCancel(ctx), runID, flow, initialInputs)
	}()

	return runID
}

func (o *Orchestrator) runWithID(ctx context.Context, runID string, flow *models.Flow, initialInputs map[string]any) (*models.ExecutionState, error) {
	state := models.NewExecutionState(runID, flow.ID, flow.Variables)

	logger := o.logger.With("run_id", runID, "flow_id", flow.ID)
	logger.Info("Starting flow run")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &activeRun{state: state, cancel: cancel}

	o.mu.Lock()
	o.runs[runID] = run
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.runs, runID)
		o.mu.Unlock()
	}()

	if err := o.validate.Struct(flow); err != nil {
		return o.abortRun(state, fmt.Errorf("invalid flow definition: %w", err))
	}

	g, err := graph.FromFlow(flow)
	if err != nil {
		return o.abortRun(state, err)
	}

	workers, err := o.buildWorkers(g)
	if err != nil {
		return o.abortRun(state, err)
	}

	state.Start()

	sched := scheduler.New(g)
	loopErr := o.loop(runCtx, run, sched, flow, workers, initialInputs)

	status := models.RunStatusCompleted

	switch {
	case run.cancelled.Load():
		status = models.RunStatusCancelled
	case loopErr != nil || state.FailureCount() > 0:
		status = models.RunStatusFailed
	}

	state.Finish(status)
	o.hooks.runFinished(runID, status)
	o.reportRun(state)

	logger.Info("Flow run finished", "status", status)

	return state, nil
}

// Cancel requests cooperative cancellation of a running flow. In-flight
// node invocations are allowed to finish, but no further nodes start.
func (o *Orchestrator) Cancel(runID string) bool {
	o.mu.Lock()
	run, ok := o.runs[runID]
	o.mu.Unlock()

	if !ok {
		return false
	}

	run.cancelled.Store(true)
	run.cancel()

	return true
}

// State returns the execution state of an in-flight run.
func (o *Orchestrator) State(runID string) (*models.ExecutionState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.runs[runID]
	if !ok {
		return nil, false
	}

	return run.state, true
}

// buildWorkers constructs a worker for every node up front, so unknown
// component types and invalid configurations fail the run before any
// dispatch attempt.
func (o *Orchestrator) buildWorkers(g *graph.DependencyGraph) (map[string]protocol.NodeWorker, error) {
	workers := make(map[string]protocol.NodeWorker, g.Len())

	for _, nodeID := range g.Nodes() {
		nodeType, _ := g.NodeType(nodeID)

		worker, err := o.registry.Create(nodeType, nodeID, g.NodeConfig(nodeID))
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nodeID, err)
		}

		workers[nodeID] = worker
	}

	return workers, nil
}

// abortRun records a pre-dispatch failure and freezes the run without
// executing any node.
func (o *Orchestrator) abortRun(state *models.ExecutionState, err error) (*models.ExecutionState, error) {
	o.logger.Error("Flow run aborted before dispatch", "run_id", state.RunID, "error", err)

	state.AppendError("", err.Error())
	state.Start()
	state.Finish(models.RunStatusFailed)
	o.hooks.runFinished(state.RunID, models.RunStatusFailed)
	o.reportRun(state)

	return state, err
}

// loop drives the run until the graph drains, the run is cancelled or the
// graph turns out to be stuck. It never returns on node failure; failures
// are absorbed as skip propagation.
func (o *Orchestrator) loop(
	ctx context.Context,
	run *activeRun,
	sched *scheduler.Scheduler,
	flow *models.Flow,
	workers map[string]protocol.NodeWorker,
	initialInputs map[string]any,
) error {
	sem := make(chan struct{}, o.config.MaxConcurrentNodes)
	results := make(chan nodeOutcome)
	inFlight := 0

	for {
		if run.cancelled.Load() || ctx.Err() != nil {
			run.cancelled.Store(true)

			for inFlight > 0 {
				o.handleOutcome(<-results, run, sched)
				inFlight--
			}

			return nil
		}

		ready := sched.ReadyNodes()

		for _, nodeID := range ready {
			inputs := o.resolveInputs(nodeID, sched, run.state, initialInputs)

			inFlight++

			go o.dispatchNode(ctx, sem, results, run, sched, flow, workers[nodeID], nodeID, inputs)
		}

		if inFlight == 0 {
			if sched.Drained() {
				return nil
			}

			if len(ready) == 0 {
				stranded := sched.Stranded()
				err := fmt.Errorf("stuck graph: nodes %v have unmet dependencies", stranded)

				run.state.AppendError("", err.Error())

				return err
			}

			continue
		}

		o.handleOutcome(<-results, run, sched)
		inFlight--
	}
}

// dispatchNode executes one node in its own goroutine, bounded by the
// concurrency semaphore and the per-node timeout. The node context is
// detached from run cancellation so an in-flight invocation finishes even
// when the run is cancelled.
func (o *Orchestrator) dispatchNode(
	ctx context.Context,
	sem chan struct{},
	results chan<- nodeOutcome,
	run *activeRun,
	sched *scheduler.Scheduler,
	flow *models.Flow,
	worker protocol.NodeWorker,
	nodeID string,
	inputs map[string]any,
) {
	sem <- struct{}{}
	defer func() { <-sem }()

	_ = sched.UpdateStatus(nodeID, models.NodeStatusRunning)
	o.hooks.nodeStart(run.state.RunID, nodeID)

	started := time.Now().UTC()

	nodeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.NodeTimeout)
	defer cancel()

	outputs, err := o.invoke(nodeCtx, run, sched, flow, worker, nodeID, inputs)

	results <- nodeOutcome{
		nodeID:   nodeID,
		outputs:  outputs,
		err:      err,
		started:  started,
		finished: time.Now().UTC(),
	}
}

func (o *Orchestrator) invoke(
	ctx context.Context,
	run *activeRun,
	sched *scheduler.Scheduler,
	flow *models.Flow,
	worker protocol.NodeWorker,
	nodeID string,
	inputs map[string]any,
) (map[string]any, error) {
	// A node that declares requires_input suspends here, blocking only its
	// own goroutine, until the input source delivers data for it.
	if o.inputs != nil && requiresInput(sched.Graph().NodeConfig(nodeID)) {
		provided, err := o.inputs.WaitForInput(ctx, run.state.RunID, nodeID)
		if err != nil {
			return nil, fmt.Errorf("waiting for user input: %w", err)
		}

		for k, v := range provided {
			inputs[k] = v
		}
	}

	if o.dispatcher != nil {
		nodeType, _ := sched.Graph().NodeType(nodeID)

		return o.dispatcher.Dispatch(ctx, Task{
			RunID:     run.state.RunID,
			FlowID:    flow.ID,
			NodeID:    nodeID,
			NodeType:  nodeType,
			Config:    sched.Graph().NodeConfig(nodeID),
			Inputs:    inputs,
			Variables: run.state.Variables(),
		})
	}

	info := protocol.ExecutionInfo{
		RunID:       run.state.RunID,
		FlowID:      flow.ID,
		NodeID:      nodeID,
		Variables:   run.state.Variables(),
		SetVariable: run.state.SetVariable,
		Stream: func(chunk string) {
			o.hooks.streamingUpdate(run.state.RunID, nodeID, chunk)
		},
	}

	return worker.Execute(ctx, inputs, info)
}

// handleOutcome folds one node result into state and scheduler, including
// transitive skip propagation on failure. Called only from the main loop,
// one outcome at a time.
func (o *Orchestrator) handleOutcome(out nodeOutcome, run *activeRun, sched *scheduler.Scheduler) {
	if out.err != nil {
		o.logger.Warn("Node failed",
			"run_id", run.state.RunID,
			"node_id", out.nodeID,
			"error", out.err,
		)

		run.state.RecordResult(&models.NodeResult{
			NodeID:     out.nodeID,
			Status:     models.NodeStatusFailed,
			Error:      out.err.Error(),
			StartedAt:  out.started,
			FinishedAt: out.finished,
		})
		run.state.AppendError(out.nodeID, out.err.Error())

		_ = sched.UpdateStatus(out.nodeID, models.NodeStatusFailed)
		o.hooks.nodeError(run.state.RunID, out.nodeID, out.err)

		for _, skipped := range sched.MarkSkippedFrom(out.nodeID) {
			run.state.RecordResult(&models.NodeResult{
				NodeID: skipped,
				Status: models.NodeStatusSkipped,
				Error:  fmt.Sprintf("skipped: upstream node %q failed", out.nodeID),
			})
		}

		return
	}

	run.state.RecordResult(&models.NodeResult{
		NodeID:     out.nodeID,
		Status:     models.NodeStatusCompleted,
		Outputs:    out.outputs,
		StartedAt:  out.started,
		FinishedAt: out.finished,
	})

	_ = sched.UpdateStatus(out.nodeID, models.NodeStatusCompleted)
	o.hooks.nodeComplete(run.state.RunID, out.nodeID, out.outputs)
}

// resolveInputs assembles the input map for one node: static config-declared
// inputs first, shared execution variables overlaid, then upstream outputs
// copied port by port via the routing table. Root nodes additionally receive
// the run's initial inputs.
func (o *Orchestrator) resolveInputs(
	nodeID string,
	sched *scheduler.Scheduler,
	state *models.ExecutionState,
	initialInputs map[string]any,
) map[string]any {
	g := sched.Graph()
	inputs := make(map[string]any)

	if cfg := g.NodeConfig(nodeID); cfg != nil {
		if declared, ok := cfg["inputs"].(map[string]any); ok {
			for k, v := range declared {
				inputs[k] = v
			}
		}
	}

	for k, v := range state.Variables() {
		inputs[k] = v
	}

	if len(g.Dependencies(nodeID)) == 0 {
		for k, v := range initialInputs {
			inputs[k] = v
		}
	}

	for port, ref := range g.Routing(nodeID) {
		outputs, ok := state.Outputs(ref.Node)
		if !ok {
			// Scheduling order guarantees completed sources; log and leave
			// the input absent rather than failing the node.
			o.logger.Warn("Input source not completed",
				"run_id", state.RunID,
				"node_id", nodeID,
				"source_node", ref.Node,
			)

			continue
		}

		value, ok := outputs[ref.Port]
		if !ok {
			continue
		}

		inputs[port] = value
	}

	return inputs
}

func requiresInput(config map[string]any) bool {
	if config == nil {
		return false
	}

	required, _ := config["requires_input"].(bool)

	return required
}

// generateRunID generates a unique run ID.
func generateRunID() string {
	return fmt.Sprintf("run-%s", uuid.New().String()[:8])
}

func (o *Orchestrator) reportRun(state *models.ExecutionState) {
	if o.report == nil {
		return
	}

	outputs := make(map[string]map[string]any)

	for nodeID, result := range state.Results() {
		if result.Status == models.NodeStatusCompleted {
			outputs[nodeID] = result.Outputs
		}
	}

	errMsg := ""
	if errs := state.Errors(); len(errs) > 0 {
		errMsg = errs[len(errs)-1].Message
	}

	o.report(state.RunID, state.Status(), outputs, errMsg)
}
