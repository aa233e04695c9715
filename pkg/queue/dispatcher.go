package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/lariat-run/lariat/pkg/engine"
	"github.com/lariat-run/lariat/pkg/models"
)

// Dispatcher offloads node execution to queue consumers. It satisfies the
// engine's Dispatcher contract: publish one TaskMessage per node, then wait
// for the correlated TaskResult from the result topic.
type Dispatcher struct {
	logger     *slog.Logger
	publisher  *TaskPublisher
	subscriber message.Subscriber
	maxRetries int
	ttlSeconds int

	mu      sync.Mutex
	pending map[string]chan *models.TaskResult
	seen    map[string]struct{}
}

// NewDispatcher creates a queue-backed dispatcher. Start must be called
// before the first Dispatch so the result listener is subscribed.
func NewDispatcher(logger *slog.Logger, publisher *TaskPublisher, subscriber message.Subscriber) *Dispatcher {
	return &Dispatcher{
		logger:     logger.With("module", "queue_dispatcher"),
		publisher:  publisher,
		subscriber: subscriber,
		maxRetries: DefaultMaxRetries,
		ttlSeconds: DefaultTaskTTLSeconds,
		pending:    make(map[string]chan *models.TaskResult),
		seen:       make(map[string]struct{}),
	}
}

// Start subscribes the result listener. It returns once the subscription is
// established; correlation runs in the background until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	messages, err := d.subscriber.Subscribe(ctx, TopicResults)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicResults, err)
	}

	go func() {
		for msg := range messages {
			d.correlate(msg)
			msg.Ack()
		}
	}()

	return nil
}

// Dispatch publishes one task and blocks until its result arrives or the
// context expires.
func (d *Dispatcher) Dispatch(ctx context.Context, task engine.Task) (map[string]any, error) {
	taskID := fmt.Sprintf("task-%s", uuid.New().String()[:8])

	ch := make(chan *models.TaskResult, 1)

	d.mu.Lock()
	d.pending[taskID] = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, taskID)
		d.mu.Unlock()
	}()

	msg := &models.TaskMessage{
		TaskID:     taskID,
		RunID:      task.RunID,
		FlowID:     task.FlowID,
		NodeID:     task.NodeID,
		NodeType:   task.NodeType,
		Config:     task.Config,
		Inputs:     task.Inputs,
		RetryCount: 0,
		MaxRetries: d.maxRetries,
		CreatedAt:  time.Now().UTC(),
		TTLSeconds: d.ttlSeconds,
	}

	if err := d.publisher.PublishTask(msg); err != nil {
		return nil, fmt.Errorf("failed to publish task: %w", err)
	}

	select {
	case result := <-ch:
		if result.Status != models.NodeStatusCompleted {
			return nil, errors.New(result.Error)
		}

		return result.Outputs, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("task %s: %w", taskID, ctx.Err())
	}
}

// correlate routes one result message to the waiting Dispatch call.
// Duplicate deliveries of the same task id are dropped.
func (d *Dispatcher) correlate(msg *message.Message) {
	var result models.TaskResult

	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		d.logger.Error("Discarding undecodable result message", "message_id", msg.UUID, "error", err)

		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[result.TaskID]; dup {
		d.logger.Debug("Dropping duplicate task result", "task_id", result.TaskID)

		return
	}

	ch, ok := d.pending[result.TaskID]
	if !ok {
		// A result for a task nobody waits on, e.g. after dispatcher restart.
		d.logger.Debug("Dropping unclaimed task result", "task_id", result.TaskID)

		return
	}

	d.seen[result.TaskID] = struct{}{}
	ch <- &result
}
