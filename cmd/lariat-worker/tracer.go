package main

import (
	"context"

	"github.com/lariat-run/lariat/pkg/tracing"
	"go.opentelemetry.io/otel/trace"
)

// newTracer returns an OTLP-exporting tracer when tracing is enabled, nil
// otherwise; the consumer treats nil as no-op.
func newTracer(ctx context.Context, enabled bool) (trace.Tracer, error) {
	if !enabled {
		return nil, nil //nolint:nilnil // nil tracer means tracing disabled
	}

	return tracing.NewTracer(ctx, "lariat-worker")
}
