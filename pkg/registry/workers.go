// Package registry provides worker factory registration for the registry system.
package registry

import (
	"github.com/lariat-run/lariat/pkg/workers/conditional"
	"github.com/lariat-run/lariat/pkg/workers/httpcall"
	"github.com/lariat-run/lariat/pkg/workers/llm"
	"github.com/lariat-run/lariat/pkg/workers/passthrough"
	"github.com/lariat-run/lariat/pkg/workers/sqlquery"
	"github.com/lariat-run/lariat/pkg/workers/transform"
)

// RegisterDefaultWorkers registers all built-in worker factories with the registry.
func (r *Registry) RegisterDefaultWorkers() {
	r.RegisterWorker(passthrough.NewFactory())
	r.RegisterWorker(conditional.NewFactory())
	r.RegisterWorker(transform.NewFactory())
	r.RegisterWorker(httpcall.NewFactory())
	r.RegisterWorker(sqlquery.NewFactory())

	// One factory per LLM provider, all sharing the llm worker implementation.
	r.RegisterWorker(llm.NewOpenAIFactory())
	r.RegisterWorker(llm.NewAnthropicFactory())
	r.RegisterWorker(llm.NewOllamaFactory())
}
