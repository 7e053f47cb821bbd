// Package worker provides job execution: an Executor that runs one
// attempt of a job through middleware in a freshly created working
// directory, and a work-stealing Pool that admits jobs against a shared
// resource capacity.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/job"
	"github.com/xraph/jobgraph/middleware"
)

// Result is the outcome of one attempt.
type Result struct {
	// Job is the job as it was attempted.
	Job *job.Job

	// Err is the error returned by the body, or nil on success.
	Err error

	// Children and FollowOn are the jobs declared during the attempt.
	// They are only meaningful when Err is nil.
	Children []*job.Job
	FollowOn *job.Job

	// Elapsed is the wall-clock duration of the attempt.
	Elapsed time.Duration

	// Worker is the index of the pool worker that ran the attempt.
	Worker int
}

// Executor runs a single attempt of a job through the middleware chain
// and the registered handler. It never changes job state; the scheduler
// decides what the result means.
type Executor struct {
	registry *job.Registry
	files    job.Files
	mw       middleware.Middleware
	logger   *slog.Logger

	workRoot     string
	keepWorkDirs bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithWorkRoot sets the directory under which attempt directories are
// created.
func WithWorkRoot(dir string) ExecutorOption {
	return func(e *Executor) { e.workRoot = dir }
}

// WithKeepWorkDirs leaves attempt directories in place after an attempt.
func WithKeepWorkDirs(keep bool) ExecutorOption {
	return func(e *Executor) { e.keepWorkDirs = keep }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	files job.Files,
	logger *slog.Logger,
	mws []middleware.Middleware,
	opts ...ExecutorOption,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		registry: registry,
		files:    files,
		mw:       middleware.Chain(mws...),
		logger:   logger,
		workRoot: filepath.Join(os.TempDir(), "jobgraph"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WorkDir returns the working directory used for the current attempt of j.
func (e *Executor) WorkDir(j *job.Job) string {
	return filepath.Join(e.workRoot, j.GraphID.String(), j.ID.String(), "attempt-"+strconv.Itoa(j.Attempts))
}

// Execute runs j once. The attempt's working directory is recreated empty
// so a body never observes partial state from an earlier attempt.
func (e *Executor) Execute(ctx context.Context, j *job.Job) Result {
	res := Result{Job: j}

	handler, ok := e.registry.Get(j.Name)
	if !ok {
		res.Err = &jobgraph.ConfigError{
			Field: "job.name",
			Err:   fmt.Errorf("%q: %w", j.Name, jobgraph.ErrUnknownJob),
		}
		return res
	}

	dir := e.WorkDir(j)
	if err := os.RemoveAll(dir); err != nil {
		res.Err = fmt.Errorf("reset work dir %s: %w", dir, err)
		return res
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.Err = fmt.Errorf("create work dir %s: %w", dir, err)
		return res
	}
	if !e.keepWorkDirs {
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				e.logger.Warn("failed to remove work dir",
					slog.String("job_id", j.ID.String()),
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	jc := job.NewContext(j, dir, e.files, e.registry, e.logger)

	terminal := func(ctx context.Context) error {
		return handler(ctx, jc, j.Payload)
	}

	start := time.Now()
	res.Err = e.mw(ctx, j, terminal)
	res.Elapsed = time.Since(start)

	if res.Err == nil {
		res.Children, res.FollowOn = jc.Spawned()
		return res
	}
	e.discard(ctx, jc)
	return res
}

// discard drops the artifacts a failed attempt created. Only the discarded
// spawns could have referenced them.
func (e *Executor) discard(ctx context.Context, jc *job.Context) {
	created := jc.Created()
	if len(created) == 0 {
		return
	}
	if err := e.files.Discard(context.WithoutCancel(ctx), created...); err != nil {
		e.logger.Warn("failed to discard artifacts of failed attempt",
			slog.String("job_id", jc.JobID().String()),
			slog.Int("attempt", jc.Attempt()),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Debug("discarded artifacts of failed attempt",
		slog.String("job_id", jc.JobID().String()),
		slog.Int("artifacts", len(created)),
	)
}
