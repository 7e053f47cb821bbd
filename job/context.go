package job

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
)

// Files is the artifact store surface visible to a job body.
// artifact.Manager implements it.
type Files interface {
	Reserve(ctx context.Context, owner id.JobID) (id.ArtifactID, error)
	Seal(ctx context.Context, artifactID id.ArtifactID, owner id.JobID, localPath string) error
	Update(ctx context.Context, artifactID id.ArtifactID, owner id.JobID, localPath string) error
	Materialize(ctx context.Context, artifactID id.ArtifactID, dest string) (string, error)
	Discard(ctx context.Context, ids ...id.ArtifactID) error
}

// Context is handed to a job body for one attempt. It exposes the
// attempt's private working directory, artifact I/O, and the spawning
// calls. Spawned jobs are buffered here and only become part of the graph
// when the engine commits them together with the parent's success; if the
// attempt fails they are discarded.
type Context struct {
	job      *Job
	workDir  string
	files    Files
	registry *Registry
	logger   *slog.Logger

	mu       sync.Mutex
	children []*Job
	followOn *Job
	created  []id.ArtifactID
}

// NewContext creates the context for one attempt of j. registry may be
// nil, in which case spawned job names are not validated.
func NewContext(j *Job, workDir string, files Files, registry *Registry, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		job:      j,
		workDir:  workDir,
		files:    files,
		registry: registry,
		logger: logger.With(
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("graph_id", j.GraphID.String()),
		),
	}
}

// Job returns the job being executed. Callers must not mutate it.
func (c *Context) Job() *Job { return c.job }

// JobID returns the ID of the job being executed.
func (c *Context) JobID() id.JobID { return c.job.ID }

// GraphID returns the ID of the graph the job belongs to.
func (c *Context) GraphID() id.GraphID { return c.job.GraphID }

// Attempt returns the 1-indexed attempt number.
func (c *Context) Attempt() int { return c.job.Attempts }

// WorkDir returns the attempt's private working directory. It is
// recreated empty for every attempt.
func (c *Context) WorkDir() string { return c.workDir }

// Path returns name resolved inside the working directory. Absolute
// paths are returned unchanged.
func (c *Context) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.workDir, name)
}

// Logger returns a logger carrying the job's identifying attributes.
func (c *Context) Logger() *slog.Logger { return c.logger }

// ──────────────────────────────────────────────────
// Spawning
// ──────────────────────────────────────────────────

// AddChild declares a child job. Children run independently of each
// other and of the rest of the parent's body; the returned ID is stable.
func (c *Context) AddChild(s Spec) (id.JobID, error) {
	if err := c.validate(s); err != nil {
		return id.Nil, err
	}
	child := s.NewJob(c.job.GraphID, c.job.ID, RelationChild)

	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()

	return child.ID, nil
}

// AddFollowOn declares the job's follow-on. It runs only after this job
// and every job it transitively spawned have succeeded. It may be called
// at most once per attempt.
func (c *Context) AddFollowOn(s Spec) (id.JobID, error) {
	if err := c.validate(s); err != nil {
		return id.Nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.followOn != nil {
		return id.Nil, jobgraph.ErrFollowOnExists
	}
	c.followOn = s.NewJob(c.job.GraphID, c.job.ID, RelationFollowOn)
	return c.followOn.ID, nil
}

// Spawned returns the jobs declared during this attempt, children in
// declaration order.
func (c *Context) Spawned() (children []*Job, followOn *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	children = make([]*Job, len(c.children))
	copy(children, c.children)
	return children, c.followOn
}

func (c *Context) validate(s Spec) error {
	if s.Name == "" || (c.registry != nil && !c.registry.Has(s.Name)) {
		return &jobgraph.ConfigError{
			Field: "job.name",
			Err:   fmt.Errorf("spawn %q from job %s: %w", s.Name, c.job.Name, jobgraph.ErrUnknownJob),
		}
	}
	return nil
}

// Child declares a typed child job from def.
func Child[T any](jc *Context, def *Definition[T], payload T, opts ...Option) (id.JobID, error) {
	s, err := NewSpec(def, payload, opts...)
	if err != nil {
		return id.Nil, err
	}
	return jc.AddChild(s)
}

// FollowOn declares a typed follow-on job from def.
func FollowOn[T any](jc *Context, def *Definition[T], payload T, opts ...Option) (id.JobID, error) {
	s, err := NewSpec(def, payload, opts...)
	if err != nil {
		return id.Nil, err
	}
	return jc.AddFollowOn(s)
}

// ──────────────────────────────────────────────────
// Artifact I/O
// ──────────────────────────────────────────────────

// Reserve creates an empty artifact owned by this job. Downstream jobs
// can reference the handle before any content is attached. Artifacts
// created by an attempt that fails are discarded with its spawns.
func (c *Context) Reserve(ctx context.Context) (id.ArtifactID, error) {
	artID, err := c.files.Reserve(ctx, c.job.ID)
	if err != nil {
		return id.Nil, err
	}
	c.mu.Lock()
	c.created = append(c.created, artID)
	c.mu.Unlock()
	return artID, nil
}

// Created returns the artifacts this attempt created through Reserve or
// Write.
func (c *Context) Created() []id.ArtifactID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]id.ArtifactID(nil), c.created...)
}

// Write stores the file at name (relative to the working directory) as a
// new sealed artifact.
func (c *Context) Write(ctx context.Context, name string) (id.ArtifactID, error) {
	artID, err := c.Reserve(ctx)
	if err != nil {
		return id.Nil, err
	}
	if err := c.files.Seal(ctx, artID, c.job.ID, c.Path(name)); err != nil {
		return id.Nil, err
	}
	return artID, nil
}

// Seal attaches the file at name to a reserved artifact.
func (c *Context) Seal(ctx context.Context, artifactID id.ArtifactID, name string) error {
	return c.files.Seal(ctx, artifactID, c.job.ID, c.Path(name))
}

// Update re-seals an artifact with the file at name.
func (c *Context) Update(ctx context.Context, artifactID id.ArtifactID, name string) error {
	return c.files.Update(ctx, artifactID, c.job.ID, c.Path(name))
}

// Read materializes an artifact into the working directory under name
// and returns its local path. An existing file at that path is reused.
func (c *Context) Read(ctx context.Context, artifactID id.ArtifactID, name string) (string, error) {
	return c.files.Materialize(ctx, artifactID, c.Path(name))
}
