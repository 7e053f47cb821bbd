package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/job"
)

// tracerName is the instrumentation scope name for jobgraph tracing.
const tracerName = "github.com/xraph/jobgraph"

// Tracing wraps each attempt in a span from the global TracerProvider.
// Without a configured provider the noop tracer makes this a
// pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer wraps each attempt in a span from tracer.
//
// Span attributes: jobgraph.job.id, jobgraph.job.name, jobgraph.graph.id,
// jobgraph.job.relation, jobgraph.attempt. Failed attempts also carry
// jobgraph.error_kind and an error status.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobgraph.job.execute",
			trace.WithAttributes(
				attribute.String("jobgraph.job.id", j.ID.String()),
				attribute.String("jobgraph.job.name", j.Name),
				attribute.String("jobgraph.graph.id", j.GraphID.String()),
				attribute.String("jobgraph.job.relation", string(j.Relation)),
				attribute.Int("jobgraph.attempt", j.Attempts),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.SetAttributes(attribute.String("jobgraph.error_kind", string(jobgraph.KindOf(err))))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
