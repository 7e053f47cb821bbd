package relayhook

import (
	"context"
	"fmt"
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

// Envelope is the document published for every event.
type Envelope struct {
	Type    string    `json:"type"`
	GraphID string    `json:"graph_id,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data"`
}

// Extension bridges jobgraph lifecycle events to a NATS publisher.
type Extension struct {
	pub      Publisher
	codec    Codec
	prefix   string
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates an Extension that publishes lifecycle events through pub.
func New(pub Publisher, opts ...Option) *Extension {
	h := &Extension{pub: pub, codec: JSONCodec{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// Subject returns the subject eventType is published on.
func (h *Extension) Subject(eventType string) string {
	if h.prefix == "" {
		return eventType
	}
	return h.prefix + "." + eventType
}

// ── Graph lifecycle hooks ───────────────────────────

// OnGraphSubmitted implements ext.GraphSubmitted.
func (h *Extension) OnGraphSubmitted(ctx context.Context, g *job.Graph, root *job.Job) error {
	return h.send(ctx, EventGraphSubmitted, g.ID.String(), &graphSubmittedPayload{
		graphPayload: *newGraphPayload(g),
		RootJob:      *newJobPayload(root),
	})
}

// OnGraphCompleted implements ext.GraphCompleted.
func (h *Extension) OnGraphCompleted(ctx context.Context, g *job.Graph, elapsed time.Duration) error {
	return h.send(ctx, EventGraphCompleted, g.ID.String(), &graphCompletedPayload{
		graphPayload: *newGraphPayload(g),
		ElapsedMs:    elapsed.Milliseconds(),
	})
}

// OnGraphFailed implements ext.GraphFailed.
func (h *Extension) OnGraphFailed(ctx context.Context, g *job.Graph, graphErr error) error {
	return h.send(ctx, EventGraphFailed, g.ID.String(), &graphFailedPayload{
		graphPayload: *newGraphPayload(g),
		Error:        graphErr.Error(),
	})
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSpawned implements ext.JobSpawned.
func (h *Extension) OnJobSpawned(ctx context.Context, parent, spawned *job.Job) error {
	return h.send(ctx, EventJobSpawned, spawned.GraphID.String(), &jobSpawnedPayload{
		jobPayload: *newJobPayload(spawned),
		ParentID:   parent.ID.String(),
	})
}

// OnJobStarted implements ext.JobStarted.
func (h *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobStarted, j.GraphID.String(), newJobPayload(j))
}

// OnJobCompleted implements ext.JobCompleted.
func (h *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return h.send(ctx, EventJobCompleted, j.GraphID.String(), &jobCompletedPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return h.send(ctx, EventJobFailed, j.GraphID.String(), &jobFailedPayload{
		jobPayload: *newJobPayload(j),
		Error:      jobErr.Error(),
		ErrorKind:  string(jobgraph.KindOf(jobErr)),
	})
}

// OnJobRetrying implements ext.JobRetrying.
func (h *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, delay time.Duration) error {
	return h.send(ctx, EventJobRetrying, j.GraphID.String(), &jobRetryingPayload{
		jobPayload:  *newJobPayload(j),
		NextAttempt: attempt,
		DelayMs:     delay.Milliseconds(),
	})
}

// OnJobCancelled implements ext.JobCancelled.
func (h *Extension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobCancelled, j.GraphID.String(), newJobPayload(j))
}

// ── Artifact lifecycle hooks ────────────────────────

// OnArtifactSealed implements ext.ArtifactSealed.
func (h *Extension) OnArtifactSealed(ctx context.Context, a *artifact.Artifact) error {
	return h.send(ctx, EventArtifactSealed, "", &artifactPayload{
		ArtifactID: a.ID.String(),
		Owner:      a.Owner.String(),
		Version:    a.Version,
		Digest:     a.Digest,
		Size:       a.Size,
	})
}

// ── Internal helpers ────────────────────────────────

// send publishes an event if the event type is enabled.
func (h *Extension) send(_ context.Context, eventType, graphID string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	body, err := h.codec.Marshal(&Envelope{
		Type:    eventType,
		GraphID: graphID,
		Time:    time.Now().UTC(),
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("relay_hook: %s %s: %w", h.codec.Name(), eventType, err)
	}

	if err := h.pub.Publish(h.Subject(eventType), body); err != nil {
		return fmt.Errorf("relay_hook: publish %s: %w", eventType, err)
	}
	return nil
}

// ── Default payload types ───────────────────────────

type graphPayload struct {
	GraphID string `json:"graph_id"`
	Name    string `json:"name"`
	State   string `json:"state"`
}

func newGraphPayload(g *job.Graph) *graphPayload {
	return &graphPayload{
		GraphID: g.ID.String(),
		Name:    g.Name,
		State:   string(g.State),
	}
}

type graphSubmittedPayload struct {
	graphPayload
	RootJob jobPayload `json:"root_job"`
}

type graphCompletedPayload struct {
	graphPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type graphFailedPayload struct {
	graphPayload
	Error string `json:"error"`
}

type jobPayload struct {
	JobID    string `json:"job_id"`
	JobName  string `json:"job_name"`
	GraphID  string `json:"graph_id"`
	Relation string `json:"relation"`
	Attempt  int    `json:"attempt"`
}

func newJobPayload(j *job.Job) *jobPayload {
	return &jobPayload{
		JobID:    j.ID.String(),
		JobName:  j.Name,
		GraphID:  j.GraphID.String(),
		Relation: string(j.Relation),
		Attempt:  j.Attempts,
	}
}

type jobSpawnedPayload struct {
	jobPayload
	ParentID string `json:"parent_id"`
}

type jobCompletedPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobFailedPayload struct {
	jobPayload
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type jobRetryingPayload struct {
	jobPayload
	NextAttempt int   `json:"next_attempt"`
	DelayMs     int64 `json:"delay_ms"`
}

type artifactPayload struct {
	ArtifactID string `json:"artifact_id"`
	Owner      string `json:"owner"`
	Version    int    `json:"version"`
	Digest     string `json:"digest"`
	Size       int64  `json:"size"`
}
