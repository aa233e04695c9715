package queue

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lariat-run/lariat/pkg/models"
)

// TaskPublisher publishes task and result messages to the exchange.
type TaskPublisher struct {
	publisher message.Publisher
}

// NewTaskPublisher wraps a watermill publisher.
func NewTaskPublisher(publisher message.Publisher) *TaskPublisher {
	return &TaskPublisher{publisher: publisher}
}

// PublishTask publishes one execution task to the task topic.
func (p *TaskPublisher) PublishTask(task *models.TaskMessage) error {
	return p.publish(TopicTasks, task.TaskID, task.RunID, task)
}

// PublishResult publishes one terminal task result to the result topic.
func (p *TaskPublisher) PublishResult(result *models.TaskResult) error {
	return p.publish(TopicResults, result.TaskID, result.RunID, result)
}

// PublishDeadLetter routes an exhausted or expired task to the dead-letter
// topic for manual inspection and replay.
func (p *TaskPublisher) PublishDeadLetter(task *models.TaskMessage) error {
	return p.publish(TopicDeadLetter, task.TaskID, task.RunID, task)
}

func (p *TaskPublisher) publish(topic, taskID, runID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataTaskID, taskID)
	msg.Metadata.Set(MetadataRunID, runID)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

// Close closes the underlying publisher.
func (p *TaskPublisher) Close() error {
	return p.publisher.Close()
}
