// Package observability provides an OpenTelemetry metrics extension.
// [MetricsExtension] implements lifecycle hooks to count graph outcomes,
// job spawns, completions, failures (by error kind), retries and
// cancellations, and sealed artifact volume.
//
// For per-attempt spans and latency, see middleware.Tracing and
// middleware.Metrics.
package observability
