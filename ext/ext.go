// Package ext defines the extension system for jobgraph.
// Extensions are notified of graph, job and artifact lifecycle events and
// can react to them (metrics, audit trails, event publishing).
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Graph lifecycle hooks
// ──────────────────────────────────────────────────

// GraphSubmitted is called after a graph and its root job are persisted.
type GraphSubmitted interface {
	OnGraphSubmitted(ctx context.Context, g *job.Graph, root *job.Job) error
}

// GraphCompleted is called when every job of a graph succeeded.
type GraphCompleted interface {
	OnGraphCompleted(ctx context.Context, g *job.Graph, elapsed time.Duration) error
}

// GraphFailed is called when a graph finishes failed or cancelled.
type GraphFailed interface {
	OnGraphFailed(ctx context.Context, g *job.Graph, err error) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobSpawned is called for every child or follow-on committed with its
// parent's success.
type JobSpawned interface {
	OnJobSpawned(ctx context.Context, parent, spawned *job.Job) error
}

// JobStarted is called when a worker begins an attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job succeeds.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a failed attempt will be retried after delay.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, delay time.Duration) error
}

// JobCancelled is called when a job is cancelled before or instead of
// running.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ArtifactSealed is called after an artifact is sealed or updated.
type ArtifactSealed interface {
	OnArtifactSealed(ctx context.Context, a *artifact.Artifact) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
