package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/job"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and fans lifecycle events out to
// them. Hooks are type-cached at registration so emit calls iterate only
// over extensions that implement the relevant interface.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	graphSubmitted []entry[GraphSubmitted]
	graphCompleted []entry[GraphCompleted]
	graphFailed    []entry[GraphFailed]
	jobSpawned     []entry[JobSpawned]
	jobStarted     []entry[JobStarted]
	jobCompleted   []entry[JobCompleted]
	jobFailed      []entry[JobFailed]
	jobRetrying    []entry[JobRetrying]
	jobCancelled   []entry[JobCancelled]
	artifactSealed []entry[ArtifactSealed]
	shutdown       []entry[Shutdown]
}

// NewRegistry creates an extension registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// cache appends e to list when it implements H.
func cache[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: name, hook: h})
	}
	return list
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.graphSubmitted = cache(r.graphSubmitted, name, e)
	r.graphCompleted = cache(r.graphCompleted, name, e)
	r.graphFailed = cache(r.graphFailed, name, e)
	r.jobSpawned = cache(r.jobSpawned, name, e)
	r.jobStarted = cache(r.jobStarted, name, e)
	r.jobCompleted = cache(r.jobCompleted, name, e)
	r.jobFailed = cache(r.jobFailed, name, e)
	r.jobRetrying = cache(r.jobRetrying, name, e)
	r.jobCancelled = cache(r.jobCancelled, name, e)
	r.artifactSealed = cache(r.artifactSealed, name, e)
	r.shutdown = cache(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// emit calls fn for each entry, logging hook errors.
func emit[H any](r *Registry, hookName string, list []entry[H], fn func(H) error) {
	for _, e := range list {
		if err := fn(e.hook); err != nil {
			r.logger.Warn("extension hook error",
				slog.String("hook", hookName),
				slog.String("extension", e.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ──────────────────────────────────────────────────
// Graph event emitters
// ──────────────────────────────────────────────────

// EmitGraphSubmitted notifies GraphSubmitted hooks.
func (r *Registry) EmitGraphSubmitted(ctx context.Context, g *job.Graph, root *job.Job) {
	emit(r, "OnGraphSubmitted", r.graphSubmitted, func(h GraphSubmitted) error {
		return h.OnGraphSubmitted(ctx, g, root)
	})
}

// EmitGraphCompleted notifies GraphCompleted hooks.
func (r *Registry) EmitGraphCompleted(ctx context.Context, g *job.Graph, elapsed time.Duration) {
	emit(r, "OnGraphCompleted", r.graphCompleted, func(h GraphCompleted) error {
		return h.OnGraphCompleted(ctx, g, elapsed)
	})
}

// EmitGraphFailed notifies GraphFailed hooks.
func (r *Registry) EmitGraphFailed(ctx context.Context, g *job.Graph, graphErr error) {
	emit(r, "OnGraphFailed", r.graphFailed, func(h GraphFailed) error {
		return h.OnGraphFailed(ctx, g, graphErr)
	})
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobSpawned notifies JobSpawned hooks.
func (r *Registry) EmitJobSpawned(ctx context.Context, parent, spawned *job.Job) {
	emit(r, "OnJobSpawned", r.jobSpawned, func(h JobSpawned) error {
		return h.OnJobSpawned(ctx, parent, spawned)
	})
}

// EmitJobStarted notifies JobStarted hooks.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	emit(r, "OnJobStarted", r.jobStarted, func(h JobStarted) error {
		return h.OnJobStarted(ctx, j)
	})
}

// EmitJobCompleted notifies JobCompleted hooks.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	emit(r, "OnJobCompleted", r.jobCompleted, func(h JobCompleted) error {
		return h.OnJobCompleted(ctx, j, elapsed)
	})
}

// EmitJobFailed notifies JobFailed hooks.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	emit(r, "OnJobFailed", r.jobFailed, func(h JobFailed) error {
		return h.OnJobFailed(ctx, j, jobErr)
	})
}

// EmitJobRetrying notifies JobRetrying hooks.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, delay time.Duration) {
	emit(r, "OnJobRetrying", r.jobRetrying, func(h JobRetrying) error {
		return h.OnJobRetrying(ctx, j, attempt, delay)
	})
}

// EmitJobCancelled notifies JobCancelled hooks.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	emit(r, "OnJobCancelled", r.jobCancelled, func(h JobCancelled) error {
		return h.OnJobCancelled(ctx, j)
	})
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitArtifactSealed notifies ArtifactSealed hooks. Its signature matches
// artifact.Observer.
func (r *Registry) EmitArtifactSealed(ctx context.Context, a *artifact.Artifact) {
	emit(r, "OnArtifactSealed", r.artifactSealed, func(h ArtifactSealed) error {
		return h.OnArtifactSealed(ctx, a)
	})
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", r.shutdown, func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}
