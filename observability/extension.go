package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/ext"
	"github.com/xraph/jobgraph/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.GraphSubmitted = (*MetricsExtension)(nil)
	_ ext.GraphCompleted = (*MetricsExtension)(nil)
	_ ext.GraphFailed    = (*MetricsExtension)(nil)
	_ ext.JobSpawned     = (*MetricsExtension)(nil)
	_ ext.JobCompleted   = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.JobRetrying    = (*MetricsExtension)(nil)
	_ ext.JobCancelled   = (*MetricsExtension)(nil)
	_ ext.ArtifactSealed = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/jobgraph/observability"

// MetricsExtension records run-wide lifecycle counters with OpenTelemetry.
type MetricsExtension struct {
	GraphSubmitted metric.Int64Counter
	GraphCompleted metric.Int64Counter
	GraphFailed    metric.Int64Counter
	GraphDuration  metric.Float64Histogram
	JobSpawned     metric.Int64Counter
	JobCompleted   metric.Int64Counter
	JobFailed      metric.Int64Counter
	JobRetried     metric.Int64Counter
	JobCancelled   metric.Int64Counter
	ArtifactSealed metric.Int64Counter
	ArtifactBytes  metric.Int64Counter
}

// NewMetricsExtension uses the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter uses the provided meter. Instrument
// creation errors leave noop instruments in place.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	duration, _ := meter.Float64Histogram("jobgraph.graph.duration",
		metric.WithDescription("Wall-clock time of successful graphs in seconds"),
		metric.WithUnit("s"),
	)
	bytes, _ := meter.Int64Counter("jobgraph.artifact.bytes",
		metric.WithDescription("Bytes attached to sealed artifacts"),
		metric.WithUnit("By"),
	)
	return &MetricsExtension{
		GraphSubmitted: counter("jobgraph.graph.submitted", "Graphs submitted"),
		GraphCompleted: counter("jobgraph.graph.completed", "Graphs that fully succeeded"),
		GraphFailed:    counter("jobgraph.graph.failed", "Graphs that failed or were cancelled"),
		GraphDuration:  duration,
		JobSpawned:     counter("jobgraph.job.spawned", "Children and follow-ons committed"),
		JobCompleted:   counter("jobgraph.job.completed", "Jobs that succeeded"),
		JobFailed:      counter("jobgraph.job.failed", "Jobs that failed terminally"),
		JobRetried:     counter("jobgraph.job.retried", "Attempts scheduled for retry"),
		JobCancelled:   counter("jobgraph.job.cancelled", "Jobs cancelled before running"),
		ArtifactSealed: counter("jobgraph.artifact.sealed", "Artifacts sealed or updated"),
		ArtifactBytes:  bytes,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Graph lifecycle hooks ───────────────────────────

// OnGraphSubmitted implements ext.GraphSubmitted.
func (m *MetricsExtension) OnGraphSubmitted(ctx context.Context, g *job.Graph, _ *job.Job) error {
	m.GraphSubmitted.Add(ctx, 1, graphAttrs(g))
	return nil
}

// OnGraphCompleted implements ext.GraphCompleted.
func (m *MetricsExtension) OnGraphCompleted(ctx context.Context, g *job.Graph, elapsed time.Duration) error {
	m.GraphCompleted.Add(ctx, 1, graphAttrs(g))
	m.GraphDuration.Record(ctx, elapsed.Seconds(), graphAttrs(g))
	return nil
}

// OnGraphFailed implements ext.GraphFailed.
func (m *MetricsExtension) OnGraphFailed(ctx context.Context, g *job.Graph, _ error) error {
	m.GraphFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph_name", g.Name),
		attribute.String("state", string(g.State)),
	))
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSpawned implements ext.JobSpawned.
func (m *MetricsExtension) OnJobSpawned(ctx context.Context, _ *job.Job, spawned *job.Job) error {
	m.JobSpawned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", spawned.Name),
		attribute.String("relation", string(spawned.Relation)),
	))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", j.Name),
		attribute.String("error_kind", string(jobgraph.KindOf(err))),
	))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Duration) error {
	m.JobRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.JobCancelled.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Artifact hooks ──────────────────────────────────

// OnArtifactSealed implements ext.ArtifactSealed.
func (m *MetricsExtension) OnArtifactSealed(ctx context.Context, a *artifact.Artifact) error {
	m.ArtifactSealed.Add(ctx, 1)
	m.ArtifactBytes.Add(ctx, a.Size)
	return nil
}

func graphAttrs(g *job.Graph) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("graph_name", g.Name))
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job_name", j.Name))
}
