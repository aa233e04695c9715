package engine

import "time"

// Defaults for the run driver.
const (
	DefaultMaxConcurrentNodes = 5
	DefaultNodeTimeout        = 2 * time.Minute
)

// Config carries the engine-level knobs for one orchestrator.
type Config struct {
	// MaxConcurrentNodes bounds how many node invocations run at once
	// within a single run, so a wide graph layer cannot fan out unboundedly.
	MaxConcurrentNodes int

	// NodeTimeout bounds each node invocation. A timeout is treated the
	// same as a worker-reported failure.
	NodeTimeout time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.MaxConcurrentNodes <= 0 {
		c.MaxConcurrentNodes = DefaultMaxConcurrentNodes
	}

	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}

	return c
}
