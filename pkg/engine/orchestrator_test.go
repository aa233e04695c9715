package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lariat-run/lariat/pkg/models"
	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/registry"
	"github.com/lariat-run/lariat/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	id      string
	typ     string
	execute func(ctx context.Context, inputs map[string]any, info protocol.ExecutionInfo) (map[string]any, error)
}

func (w *fakeWorker) Execute(ctx context.Context, inputs map[string]any, info protocol.ExecutionInfo) (map[string]any, error) {
	return w.execute(ctx, inputs, info)
}

func (w *fakeWorker) ID() string   { return w.id }
func (w *fakeWorker) Type() string { return w.typ }

type fakeFactory struct {
	typ     string
	execute func(ctx context.Context, inputs map[string]any, info protocol.ExecutionInfo) (map[string]any, error)
}

func (f *fakeFactory) Create(id string, _ map[string]any) (protocol.NodeWorker, error) {
	return &fakeWorker{id: id, typ: f.typ, execute: f.execute}, nil
}

func (f *fakeFactory) ID() string             { return f.typ }
func (f *fakeFactory) Name() string           { return f.typ }
func (f *fakeFactory) Description() string    { return "test worker" }
func (f *fakeFactory) Schema() map[string]any { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T, extra ...protocol.WorkerFactory) *registry.Registry {
	t.Helper()

	reg := registry.New(testLogger())
	reg.RegisterDefaultWorkers()

	for _, f := range extra {
		reg.RegisterWorker(f)
	}

	return reg
}

func TestRun_LinearFlow(t *testing.T) {
	flow := testutil.LinearFlow("flow-linear",
		testutil.CreateTestNode(testutil.WithID("a")),
		testutil.CreateTestNode(testutil.WithID("b")),
	)

	o := New(testLogger(), testRegistry(t))

	state, err := o.Run(context.Background(), flow, map[string]any{"main": "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, state.Status())

	resultA, ok := state.Result("a")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, resultA.Status)

	outputsB, ok := state.Outputs("b")
	require.True(t, ok)
	assert.Equal(t, "hello", outputsB["main"])
}

func TestRun_FailureSkipsOnlyDownstream(t *testing.T) {
	boom := &fakeFactory{
		typ: "boom",
		execute: func(context.Context, map[string]any, protocol.ExecutionInfo) (map[string]any, error) {
			return nil, errors.New("worker exploded")
		},
	}

	// a fans out to b and c; only d depends on the failing b.
	flow := testutil.CreateTestFlow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithID("a")),
			testutil.CreateTestNode(testutil.WithID("b"), testutil.WithType("boom")),
			testutil.CreateTestNode(testutil.WithID("c")),
			testutil.CreateTestNode(testutil.WithID("d")),
		),
		testutil.WithEdges(
			testutil.Connect("a", "main", "b", "main"),
			testutil.Connect("a", "main", "c", "main"),
			testutil.Connect("b", "main", "d", "main"),
		),
	)

	o := New(testLogger(), testRegistry(t, boom))

	state, err := o.Run(context.Background(), flow, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, state.Status())

	resultB, ok := state.Result("b")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusFailed, resultB.Status)
	assert.Contains(t, resultB.Error, "worker exploded")

	resultC, ok := state.Result("c")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, resultC.Status)

	resultD, ok := state.Result("d")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, resultD.Status)
	assert.Equal(t, `skipped: upstream node "b" failed`, resultD.Error)

	summary := state.Summary()
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	var current, peak atomic.Int32

	tracked := &fakeFactory{
		typ: "tracked",
		execute: func(context.Context, map[string]any, protocol.ExecutionInfo) (map[string]any, error) {
			n := current.Add(1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			time.Sleep(20 * time.Millisecond)
			current.Add(-1)

			return map[string]any{"main": nil}, nil
		},
	}

	nodes := make([]*models.Node, 8)
	for i := range nodes {
		nodes[i] = testutil.CreateTestNode(testutil.WithType("tracked"))
	}

	flow := testutil.CreateTestFlow(testutil.WithNodes(nodes...))

	o := New(testLogger(), testRegistry(t, tracked), WithConfig(Config{MaxConcurrentNodes: 2}))

	state, err := o.Run(context.Background(), flow, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, state.Status())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_NodeTimeout(t *testing.T) {
	stuck := &fakeFactory{
		typ: "stuck",
		execute: func(ctx context.Context, _ map[string]any, _ protocol.ExecutionInfo) (map[string]any, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		},
	}

	flow := testutil.CreateTestFlow(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithID("slow"), testutil.WithType("stuck"))),
	)

	o := New(testLogger(), testRegistry(t, stuck), WithConfig(Config{NodeTimeout: 50 * time.Millisecond}))

	state, err := o.Run(context.Background(), flow, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, state.Status())

	result, ok := state.Result("slow")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusFailed, result.Status)
	assert.Contains(t, result.Error, "deadline exceeded")
}

func TestRun_InvalidFlowDefinition(t *testing.T) {
	flow := &models.Flow{ID: "empty"}

	o := New(testLogger(), testRegistry(t))

	state, err := o.Run(context.Background(), flow, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid flow definition")
	assert.Equal(t, models.RunStatusFailed, state.Status())
	assert.NotEmpty(t, state.Errors())
}

func TestRun_UnknownWorkerType(t *testing.T) {
	flow := testutil.CreateTestFlow(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithType("nope"))),
	)

	o := New(testLogger(), testRegistry(t))

	state, err := o.Run(context.Background(), flow, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownWorkerType)
	assert.Equal(t, models.RunStatusFailed, state.Status())
}

func TestRun_CyclicFlow(t *testing.T) {
	flow := testutil.CreateTestFlow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithID("a")),
			testutil.CreateTestNode(testutil.WithID("b")),
		),
		testutil.WithEdges(
			testutil.Connect("a", "main", "b", "main"),
			testutil.Connect("b", "main", "a", "main"),
		),
	)

	o := New(testLogger(), testRegistry(t))

	state, err := o.Run(context.Background(), flow, nil)
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, state.Status())
}

func TestRun_VariablesVisibleAsInputs(t *testing.T) {
	flow := testutil.CreateTestFlow(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithID("a"))),
		testutil.WithVariables(map[string]any{"greeting": "hi"}),
	)

	o := New(testLogger(), testRegistry(t))

	state, err := o.Run(context.Background(), flow, nil)
	require.NoError(t, err)

	outputs, ok := state.Outputs("a")
	require.True(t, ok)
	assert.Equal(t, "hi", outputs["greeting"])
}

func TestRun_InitialInputsReachRootsOnly(t *testing.T) {
	var inputsB map[string]any

	capture := &fakeFactory{
		typ: "capture",
		execute: func(_ context.Context, inputs map[string]any, _ protocol.ExecutionInfo) (map[string]any, error) {
			inputsB = inputs

			return map[string]any{"main": nil}, nil
		},
	}

	flow := testutil.CreateTestFlow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithID("a"), testutil.WithConfig(map[string]any{
				"inputs": map[string]any{"static": "from-config"},
			})),
			testutil.CreateTestNode(testutil.WithID("b"), testutil.WithType("capture")),
		),
		testutil.WithEdges(testutil.Connect("a", "static", "b", "in")),
	)

	o := New(testLogger(), testRegistry(t, capture))

	state, err := o.Run(context.Background(), flow, map[string]any{"seed": 42})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, state.Status())

	outputsA, ok := state.Outputs("a")
	require.True(t, ok)
	assert.Equal(t, 42, outputsA["seed"])
	assert.Equal(t, "from-config", outputsA["static"])

	// b is not a root, so it sees routed ports but not the initial inputs.
	assert.Equal(t, "from-config", inputsB["in"])
	assert.NotContains(t, inputsB, "seed")
}

type staticInputSource struct {
	data map[string]any
}

func (s staticInputSource) WaitForInput(_ context.Context, _, _ string) (map[string]any, error) {
	return s.data, nil
}

func TestRun_RequiresInputMergesProvidedData(t *testing.T) {
	flow := testutil.CreateTestFlow(
		testutil.WithNodes(testutil.CreateTestNode(
			testutil.WithID("gate"),
			testutil.WithConfig(map[string]any{"requires_input": true}),
		)),
	)

	o := New(testLogger(), testRegistry(t),
		WithInputSource(staticInputSource{data: map[string]any{"approved": true}}),
	)

	state, err := o.Run(context.Background(), flow, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, state.Status())

	outputs, ok := state.Outputs("gate")
	require.True(t, ok)
	assert.Equal(t, true, outputs["approved"])
}

func TestCancel_StopsSchedulingNewNodes(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	gate := &fakeFactory{
		typ: "gate",
		execute: func(context.Context, map[string]any, protocol.ExecutionInfo) (map[string]any, error) {
			close(started)
			<-release

			return map[string]any{"main": "done"}, nil
		},
	}

	flow := testutil.LinearFlow("flow-cancel",
		testutil.CreateTestNode(testutil.WithID("first"), testutil.WithType("gate")),
		testutil.CreateTestNode(testutil.WithID("second")),
	)

	finished := make(chan models.RunStatus, 1)

	o := New(testLogger(), testRegistry(t, gate),
		WithReportFunc(func(_ string, status models.RunStatus, _ map[string]map[string]any, _ string) {
			finished <- status
		}),
	)

	runID := o.RunAsync(context.Background(), flow, nil)

	<-started

	state, ok := o.State(runID)
	require.True(t, ok)
	assert.Equal(t, models.RunStatusRunning, state.Status())

	require.True(t, o.Cancel(runID))
	close(release)

	select {
	case status := <-finished:
		assert.Equal(t, models.RunStatusCancelled, status)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}

	// The in-flight node ran to completion; the downstream one never started.
	result, ok := state.Result("first")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, result.Status)

	_, ok = state.Result("second")
	assert.False(t, ok)
}

func TestCancel_UnknownRun(t *testing.T) {
	o := New(testLogger(), testRegistry(t))
	assert.False(t, o.Cancel("run-missing"))
}

func TestRun_HooksFireInOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)

	record := func(event string) {
		mu.Lock()
		defer mu.Unlock()

		events = append(events, event)
	}

	flow := testutil.LinearFlow("flow-hooks",
		testutil.CreateTestNode(testutil.WithID("a")),
	)

	o := New(testLogger(), testRegistry(t), WithHooks(Hooks{
		OnNodeStart:    func(_, nodeID string) { record("start:" + nodeID) },
		OnNodeComplete: func(_, nodeID string, _ map[string]any) { record("complete:" + nodeID) },
		OnNodeError:    func(_, nodeID string, _ error) { record("error:" + nodeID) },
		OnRunFinished:  func(_ string, status models.RunStatus) { record("finished:" + string(status)) },
	}))

	_, err := o.Run(context.Background(), flow, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"start:a", "complete:a", "finished:completed"}, events)
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []Task
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task Task) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tasks = append(d.tasks, task)

	return map[string]any{"main": "remote"}, nil
}

func TestRun_DispatcherOffloadsExecution(t *testing.T) {
	dispatcher := &recordingDispatcher{}

	flow := testutil.LinearFlow("flow-remote",
		testutil.CreateTestNode(testutil.WithID("a")),
		testutil.CreateTestNode(testutil.WithID("b")),
	)
	flow.Variables = map[string]any{"region": "eu"}

	o := New(testLogger(), testRegistry(t), WithDispatcher(dispatcher))

	state, err := o.Run(context.Background(), flow, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, state.Status())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	require.Len(t, dispatcher.tasks, 2)

	first := dispatcher.tasks[0]
	assert.Equal(t, "flow-remote", first.FlowID)
	assert.Equal(t, "a", first.NodeID)
	assert.Equal(t, "passthrough", first.NodeType)
	assert.Equal(t, "eu", first.Variables["region"])

	second := dispatcher.tasks[1]
	assert.Equal(t, "b", second.NodeID)
	assert.Equal(t, "remote", second.Inputs["main"])
}

func TestRunAsync_ReturnsImmediatelyWithRunID(t *testing.T) {
	release := make(chan struct{})

	gate := &fakeFactory{
		typ: "gate",
		execute: func(context.Context, map[string]any, protocol.ExecutionInfo) (map[string]any, error) {
			<-release

			return map[string]any{"main": nil}, nil
		},
	}

	flow := testutil.CreateTestFlow(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithType("gate"))),
	)

	done := make(chan struct{})

	o := New(testLogger(), testRegistry(t, gate),
		WithReportFunc(func(string, models.RunStatus, map[string]map[string]any, string) {
			close(done)
		}),
	)

	runID := o.RunAsync(context.Background(), flow, nil)
	require.NotEmpty(t, runID)

	// State is registered before the first node runs.
	assert.Eventually(t, func() bool {
		_, ok := o.State(runID)

		return ok
	}, time.Second, 5*time.Millisecond)

	close(release)
	<-done
}
