// Package queue provides the distributed task dispatch layer: execution
// tasks published over a durable message topic, a consumer pool that runs
// node workers, retry with exponential backoff and a dead-letter topic for
// poison messages.
package queue

import "time"

// Topic routing keys for the task exchange.
const (
	TopicTasks      = "tasks.execute"
	TopicResults    = "tasks.result"
	TopicDeadLetter = "tasks.failed"
)

// Message metadata keys.
const (
	MetadataTaskID = "task_id"
	MetadataRunID  = "run_id"
)

// Retry policy defaults.
const (
	DefaultMaxRetries     = 3
	DefaultBackoffCap     = 60 * time.Second
	DefaultTaskTTLSeconds = 600
)

// Backoff returns the republish delay for a given retry count:
// min(2^retryCount, cap) seconds.
func Backoff(retryCount int, cap time.Duration) time.Duration {
	if retryCount > 30 {
		return cap
	}

	delay := time.Duration(1<<uint(retryCount)) * time.Second
	if delay > cap {
		return cap
	}

	return delay
}
