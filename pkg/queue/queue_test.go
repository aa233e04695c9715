package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/lariat-run/lariat/pkg/engine"
	"github.com/lariat-run/lariat/pkg/models"
	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWorker struct {
	id      string
	typ     string
	execute func(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

func (w *fakeWorker) Execute(ctx context.Context, inputs map[string]any, _ protocol.ExecutionInfo) (map[string]any, error) {
	return w.execute(ctx, inputs)
}

func (w *fakeWorker) ID() string   { return w.id }
func (w *fakeWorker) Type() string { return w.typ }

type fakeFactory struct {
	typ     string
	execute func(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

func (f *fakeFactory) Create(id string, _ map[string]any) (protocol.NodeWorker, error) {
	return &fakeWorker{id: id, typ: f.typ, execute: f.execute}, nil
}

func (f *fakeFactory) ID() string             { return f.typ }
func (f *fakeFactory) Name() string           { return f.typ }
func (f *fakeFactory) Description() string    { return "test worker" }
func (f *fakeFactory) Schema() map[string]any { return nil }

// startPipeline wires a consumer and a dispatcher over an in-process pubsub.
func startPipeline(t *testing.T, ctx context.Context, reg *registry.Registry) (*Dispatcher, *Consumer, *gochannel.GoChannel) {
	t.Helper()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubsub.Close() })

	consumer := NewConsumer("worker-test", testLogger(), reg, pubsub, NewTaskPublisher(pubsub), nil)
	consumer.backoffCap = 10 * time.Millisecond

	go func() { _ = consumer.Run(ctx) }()

	dispatcher := NewDispatcher(testLogger(), NewTaskPublisher(pubsub), pubsub)
	require.NoError(t, dispatcher.Start(ctx))

	// Give both subscriptions a moment to attach before publishing.
	time.Sleep(20 * time.Millisecond)

	return dispatcher, consumer, pubsub
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		cap        time.Duration
		want       time.Duration
	}{
		{retryCount: 0, cap: 60 * time.Second, want: 1 * time.Second},
		{retryCount: 1, cap: 60 * time.Second, want: 2 * time.Second},
		{retryCount: 3, cap: 60 * time.Second, want: 8 * time.Second},
		{retryCount: 6, cap: 60 * time.Second, want: 60 * time.Second},
		{retryCount: 40, cap: 60 * time.Second, want: 60 * time.Second},
		{retryCount: 5, cap: 10 * time.Millisecond, want: 10 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.retryCount, tt.cap), "retry %d", tt.retryCount)
	}
}

func TestDispatch_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(testLogger())
	reg.RegisterDefaultWorkers()

	dispatcher, _, _ := startPipeline(t, ctx, reg)

	outputs, err := dispatcher.Dispatch(ctx, engine.Task{
		RunID:    "run-1",
		FlowID:   "flow-1",
		NodeID:   "n1",
		NodeType: "passthrough",
		Inputs:   map[string]any{"main": "payload"},
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", outputs["main"])
}

func TestDispatch_RetriesUntilSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32

	flaky := &fakeFactory{
		typ: "flaky",
		execute: func(context.Context, map[string]any) (map[string]any, error) {
			if attempts.Add(1) < 3 {
				return nil, errors.New("transient failure")
			}

			return map[string]any{"main": "eventually"}, nil
		},
	}

	reg := registry.New(testLogger())
	reg.RegisterWorker(flaky)

	dispatcher, _, _ := startPipeline(t, ctx, reg)

	outputs, err := dispatcher.Dispatch(ctx, engine.Task{
		RunID:    "run-2",
		NodeID:   "n1",
		NodeType: "flaky",
	})
	require.NoError(t, err)
	assert.Equal(t, "eventually", outputs["main"])
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDispatch_ExhaustedRetriesDeadLetter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32

	broken := &fakeFactory{
		typ: "broken",
		execute: func(context.Context, map[string]any) (map[string]any, error) {
			attempts.Add(1)

			return nil, errors.New("permanent failure")
		},
	}

	reg := registry.New(testLogger())
	reg.RegisterWorker(broken)

	dispatcher, _, pubsub := startPipeline(t, ctx, reg)
	dispatcher.maxRetries = 1

	deadLetters, err := pubsub.Subscribe(ctx, TopicDeadLetter)
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(ctx, engine.Task{
		RunID:    "run-3",
		NodeID:   "n1",
		NodeType: "broken",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Contains(t, err.Error(), "permanent failure")

	// One initial attempt plus one retry.
	assert.Equal(t, int32(2), attempts.Load())

	select {
	case msg := <-deadLetters:
		var task models.TaskMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &task))
		assert.Equal(t, "run-3", task.RunID)
		assert.Contains(t, task.FailureReason, "max retries exceeded")
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("no dead-letter message arrived")
	}
}

func TestConsumer_ExpiredTaskDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32

	counting := &fakeFactory{
		typ: "counting",
		execute: func(context.Context, map[string]any) (map[string]any, error) {
			attempts.Add(1)

			return map[string]any{"main": nil}, nil
		},
	}

	reg := registry.New(testLogger())
	reg.RegisterWorker(counting)

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubsub.Close() })

	publisher := NewTaskPublisher(pubsub)
	consumer := NewConsumer("worker-ttl", testLogger(), reg, pubsub, publisher, nil)

	results, err := pubsub.Subscribe(ctx, TopicResults)
	require.NoError(t, err)

	go func() { _ = consumer.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, publisher.PublishTask(&models.TaskMessage{
		TaskID:     "task-expired",
		RunID:      "run-4",
		NodeID:     "n1",
		NodeType:   "counting",
		CreatedAt:  time.Now().UTC().Add(-11 * time.Minute),
		TTLSeconds: 600,
	}))

	select {
	case msg := <-results:
		var result models.TaskResult
		require.NoError(t, json.Unmarshal(msg.Payload, &result))
		assert.Equal(t, "task-expired", result.TaskID)
		assert.Equal(t, models.NodeStatusFailed, result.Status)
		assert.Equal(t, "task ttl expired", result.Error)
		assert.Equal(t, "worker-ttl", result.WorkerID)
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("no failed result arrived")
	}

	// The expired task never reached the worker.
	assert.Equal(t, int32(0), attempts.Load())
}

func TestCorrelate_DropsDuplicatesAndUnclaimed(t *testing.T) {
	d := NewDispatcher(testLogger(), NewTaskPublisher(gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})), nil)

	ch := make(chan *models.TaskResult, 1)
	d.pending["task-1"] = ch

	payload, err := json.Marshal(&models.TaskResult{
		TaskID: "task-1",
		Status: models.NodeStatusCompleted,
	})
	require.NoError(t, err)

	// First delivery lands in the waiter channel.
	d.correlate(message.NewMessage(watermill.NewUUID(), payload))
	require.Len(t, ch, 1)

	// A redelivery of the same task id is dropped instead of blocking.
	d.correlate(message.NewMessage(watermill.NewUUID(), payload))
	assert.Len(t, ch, 1)

	// A result nobody waits on is dropped.
	unclaimed, err := json.Marshal(&models.TaskResult{TaskID: "task-ghost"})
	require.NoError(t, err)
	d.correlate(message.NewMessage(watermill.NewUUID(), unclaimed))

	// Undecodable payloads are discarded.
	d.correlate(message.NewMessage(watermill.NewUUID(), []byte("not json")))

	result := <-ch
	assert.Equal(t, models.NodeStatusCompleted, result.Status)
}
