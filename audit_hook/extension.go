package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/ext"
	"github.com/xraph/jobgraph/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.GraphSubmitted = (*Extension)(nil)
	_ ext.GraphCompleted = (*Extension)(nil)
	_ ext.GraphFailed    = (*Extension)(nil)
	_ ext.JobSpawned     = (*Extension)(nil)
	_ ext.JobStarted     = (*Extension)(nil)
	_ ext.JobCompleted   = (*Extension)(nil)
	_ ext.JobFailed      = (*Extension)(nil)
	_ ext.JobRetrying    = (*Extension)(nil)
	_ ext.JobCancelled   = (*Extension)(nil)
	_ ext.ArtifactSealed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges jobgraph lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	minRank  int
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// entry is an audit event under construction.
type entry struct {
	evt *AuditEvent
}

func newEntry(action, severity, outcome string) *entry {
	return &entry{evt: &AuditEvent{
		Action:   action,
		Severity: severity,
		Outcome:  outcome,
		Metadata: map[string]any{},
	}}
}

func (en *entry) graph(g *job.Graph) *entry {
	en.evt.Resource, en.evt.Category, en.evt.ResourceID = ResourceGraph, CategoryGraph, g.ID.String()
	en.evt.Metadata["graph_name"] = g.Name
	return en
}

func (en *entry) job(j *job.Job) *entry {
	en.evt.Resource, en.evt.Category, en.evt.ResourceID = ResourceJob, CategoryJob, j.ID.String()
	en.evt.Metadata["job_name"] = j.Name
	en.evt.Metadata["graph_id"] = j.GraphID.String()
	return en
}

func (en *entry) artifact(a *artifact.Artifact) *entry {
	en.evt.Resource, en.evt.Category, en.evt.ResourceID = ResourceArtifact, CategoryArtifact, a.ID.String()
	return en
}

func (en *entry) with(key string, val any) *entry {
	en.evt.Metadata[key] = val
	return en
}

// failed records err as the event's reason. The error kind goes with it
// so retries and tool failures can be told apart downstream.
func (en *entry) failed(err error) *entry {
	if err == nil {
		return en
	}
	en.evt.Reason = err.Error()
	en.evt.Metadata["error"] = err.Error()
	en.evt.Metadata["error_kind"] = string(jobgraph.KindOf(err))
	return en
}

// ── Graph lifecycle hooks ───────────────────────────

// OnGraphSubmitted implements ext.GraphSubmitted.
func (e *Extension) OnGraphSubmitted(ctx context.Context, g *job.Graph, root *job.Job) error {
	return e.emit(ctx, newEntry(ActionGraphSubmitted, SeverityInfo, OutcomeSuccess).graph(g).
		with("root_job", root.Name).
		with("root_job_id", root.ID.String()))
}

// OnGraphCompleted implements ext.GraphCompleted.
func (e *Extension) OnGraphCompleted(ctx context.Context, g *job.Graph, elapsed time.Duration) error {
	return e.emit(ctx, newEntry(ActionGraphCompleted, SeverityInfo, OutcomeSuccess).graph(g).
		with("elapsed_ms", elapsed.Milliseconds()))
}

// OnGraphFailed implements ext.GraphFailed.
func (e *Extension) OnGraphFailed(ctx context.Context, g *job.Graph, graphErr error) error {
	return e.emit(ctx, newEntry(ActionGraphFailed, SeverityCritical, OutcomeFailure).graph(g).
		with("state", string(g.State)).
		failed(graphErr))
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSpawned implements ext.JobSpawned.
func (e *Extension) OnJobSpawned(ctx context.Context, parent, spawned *job.Job) error {
	return e.emit(ctx, newEntry(ActionJobSpawned, SeverityInfo, OutcomeSuccess).job(spawned).
		with("relation", string(spawned.Relation)).
		with("parent_id", parent.ID.String()))
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.emit(ctx, newEntry(ActionJobStarted, SeverityInfo, OutcomeSuccess).job(j).
		with("attempt", j.Attempts).
		with("worker_id", j.WorkerID.String()))
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.emit(ctx, newEntry(ActionJobCompleted, SeverityInfo, OutcomeSuccess).job(j).
		with("elapsed_ms", elapsed.Milliseconds()))
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.emit(ctx, newEntry(ActionJobFailed, SeverityCritical, OutcomeFailure).job(j).
		with("attempts", j.Attempts).
		with("max_retries", j.MaxRetries).
		failed(jobErr))
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, delay time.Duration) error {
	return e.emit(ctx, newEntry(ActionJobRetrying, SeverityWarning, OutcomeFailure).job(j).
		with("attempt", attempt).
		with("retries_remaining", j.RetriesRemaining).
		with("delay_ms", delay.Milliseconds()))
}

// OnJobCancelled implements ext.JobCancelled.
func (e *Extension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return e.emit(ctx, newEntry(ActionJobCancelled, SeverityWarning, OutcomeFailure).job(j).
		with("relation", string(j.Relation)))
}

// ── Artifact lifecycle hooks ────────────────────────

// OnArtifactSealed implements ext.ArtifactSealed.
func (e *Extension) OnArtifactSealed(ctx context.Context, a *artifact.Artifact) error {
	return e.emit(ctx, newEntry(ActionArtifactSealed, SeverityInfo, OutcomeSuccess).artifact(a).
		with("owner", a.Owner.String()).
		with("version", a.Version).
		with("digest", a.Digest).
		with("size", a.Size))
}

// ── Internal helpers ────────────────────────────────

// emit sends en through the recorder unless its action is disabled or
// its severity is below the configured floor. Recorder failures are
// logged, never returned, so auditing cannot fail a graph.
func (e *Extension) emit(ctx context.Context, en *entry) error {
	evt := en.evt
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}
	if severityRank(evt.Severity) < e.minRank {
		return nil
	}
	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}

func severityRank(s string) int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}
