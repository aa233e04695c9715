package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lariat-run/lariat/pkg/models"
	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/registry"
	"github.com/lariat-run/lariat/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var errTaskExpired = errors.New("task ttl expired")

// Consumer pulls execution tasks from the task topic, runs the matching
// node worker and publishes a terminal result. Failed attempts are
// republished with exponential backoff until the retry budget is exhausted,
// then routed to the dead-letter topic. Delivery is at-least-once; the
// result listener dedupes by task id.
type Consumer struct {
	workerID    string
	logger      *slog.Logger
	registry    *registry.Registry
	subscriber  message.Subscriber
	publisher   *TaskPublisher
	tracer      trace.Tracer
	nodeTimeout time.Duration
	backoffCap  time.Duration
}

// NewConsumer creates a task consumer. A nil tracer disables tracing.
func NewConsumer(
	workerID string,
	logger *slog.Logger,
	reg *registry.Registry,
	subscriber message.Subscriber,
	publisher *TaskPublisher,
	tracer trace.Tracer,
) *Consumer {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("queue_consumer")
	}

	return &Consumer{
		workerID:    workerID,
		logger:      logger.With("module", "queue_consumer", "worker_id", workerID),
		registry:    reg,
		subscriber:  subscriber,
		publisher:   publisher,
		tracer:      tracer,
		nodeTimeout: 2 * time.Minute,
		backoffCap:  DefaultBackoffCap,
	}
}

// Run consumes tasks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, TopicTasks)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicTasks, err)
	}

	c.logger.Info("Consumer started")

	for msg := range messages {
		c.handle(ctx, msg)
		msg.Ack()
	}

	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	var task models.TaskMessage

	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		c.logger.Error("Discarding undecodable task message", "message_id", msg.UUID, "error", err)

		return
	}

	logger := c.logger.With("task_id", task.TaskID, "run_id", task.RunID, "node_id", task.NodeID)

	traceCtx, span := tracing.StartSpan(ctx, c.tracer, "queue.consumer handle",
		attribute.String(tracing.TaskIDKey, task.TaskID),
		attribute.String(tracing.RunIDKey, task.RunID),
		attribute.String(tracing.FlowIDKey, task.FlowID),
		attribute.String(tracing.NodeIDKey, task.NodeID),
		attribute.String(tracing.NodeTypeKey, task.NodeType),
		attribute.String(tracing.WorkerIDKey, c.workerID),
	)
	defer span.End()

	if task.Expired(time.Now().UTC()) {
		logger.Warn("Task outlived its TTL, dead-lettering")
		task.FailureReason = "task ttl expired"
		tracing.SetError(span, errTaskExpired)
		c.deadLetter(&task, logger)

		return
	}

	outputs, err := c.execute(traceCtx, &task)
	if err == nil {
		c.publishResult(&task, models.NodeStatusCompleted, outputs, "", logger)

		return
	}

	logger.Warn("Task attempt failed", "retry_count", task.RetryCount, "error", err)
	tracing.SetError(span, err)

	task.RetryCount++
	if task.RetryCount > task.MaxRetries {
		task.FailureReason = fmt.Sprintf("max retries exceeded: %v", err)
		c.deadLetter(&task, logger)

		return
	}

	c.republish(ctx, &task, logger)
}

// execute runs the node worker for one delivery attempt.
func (c *Consumer) execute(ctx context.Context, task *models.TaskMessage) (map[string]any, error) {
	worker, err := c.registry.Create(task.NodeType, task.NodeID, task.Config)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.nodeTimeout)
	defer cancel()

	info := protocol.ExecutionInfo{
		RunID:  task.RunID,
		FlowID: task.FlowID,
		NodeID: task.NodeID,
	}

	started := time.Now()

	outputs, err := worker.Execute(attemptCtx, task.Inputs, info)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Task executed",
		"task_id", task.TaskID,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return outputs, nil
}

// republish schedules the task for another attempt after exponential
// backoff: min(2^retry_count, cap).
func (c *Consumer) republish(ctx context.Context, task *models.TaskMessage, logger *slog.Logger) {
	delay := Backoff(task.RetryCount, c.backoffCap)

	logger.Info("Republishing task", "retry_count", task.RetryCount, "delay", delay)

	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		if err := c.publisher.PublishTask(task); err != nil {
			logger.Error("Failed to republish task, dead-lettering", "error", err)
			task.FailureReason = fmt.Sprintf("republish failed: %v", err)
			c.deadLetter(task, logger)
		}
	}()
}

// deadLetter routes a poison task to the dead-letter topic and reports the
// node as failed so the orchestrator can resolve the run.
func (c *Consumer) deadLetter(task *models.TaskMessage, logger *slog.Logger) {
	if err := c.publisher.PublishDeadLetter(task); err != nil {
		logger.Error("Failed to publish to dead-letter topic", "error", err)
	}

	c.publishResult(task, models.NodeStatusFailed, nil, task.FailureReason, logger)
}

func (c *Consumer) publishResult(
	task *models.TaskMessage,
	status models.NodeRunStatus,
	outputs map[string]any,
	errMsg string,
	logger *slog.Logger,
) {
	result := &models.TaskResult{
		TaskID:     task.TaskID,
		RunID:      task.RunID,
		NodeID:     task.NodeID,
		Status:     status,
		Outputs:    outputs,
		Error:      errMsg,
		WorkerID:   c.workerID,
		FinishedAt: time.Now().UTC(),
	}

	if err := c.publisher.PublishResult(result); err != nil {
		logger.Error("Failed to publish task result", "error", err)
	}
}
