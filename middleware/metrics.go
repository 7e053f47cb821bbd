package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/job"
)

// meterName is the instrumentation scope name for jobgraph metrics.
const meterName = "github.com/xraph/jobgraph"

// Metrics records per-attempt metrics with the global MeterProvider.
//
// Instruments:
//   - jobgraph.job.duration (Float64Histogram, seconds)
//   - jobgraph.job.executions (Int64Counter)
//
// Both carry job_name, status ("ok" or "error") and error_kind.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter records per-attempt metrics with meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API returns noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"jobgraph.job.duration",
		metric.WithDescription("Duration of job attempts in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"jobgraph.job.executions",
		metric.WithDescription("Total number of job attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("job_name", j.Name),
			attribute.String("status", status),
			attribute.String("error_kind", string(jobgraph.KindOf(err))),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)
		return err
	}
}
