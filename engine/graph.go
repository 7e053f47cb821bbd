package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// GraphHandle identifies a submitted graph.
type GraphHandle struct {
	ID   id.GraphID
	Name string
}

// Failure describes a job that failed permanently.
type Failure struct {
	JobID id.JobID
	Name  string
	Kind  jobgraph.Kind
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Name, f.JobID, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// RunResult is the final outcome of a graph.
type RunResult struct {
	GraphID   id.GraphID
	Name      string
	State     job.GraphState
	Failed    []Failure
	Succeeded int
	Cancelled int
	Elapsed   time.Duration
}

// Err joins the errors of every failed job, or reports cancellation.
// It returns nil for a succeeded graph.
func (r *RunResult) Err() error {
	switch r.State {
	case job.GraphSucceeded:
		return nil
	case job.GraphCancelled:
		if len(r.Failed) == 0 {
			return jobgraph.ErrGraphCancelled
		}
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// String summarises the result in one line.
func (r *RunResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph %s %s: %d succeeded, %d failed, %d cancelled in %s",
		r.Name, r.State, r.Succeeded, len(r.Failed), r.Cancelled, r.Elapsed.Round(time.Millisecond))
	return b.String()
}

// Submit creates a graph whose root job is described by root and starts
// scheduling it. The root job must name a registered definition.
func (eng *Engine) Submit(ctx context.Context, name string, root job.Spec) (GraphHandle, error) {
	if !eng.registry.Has(root.Name) {
		return GraphHandle{}, &jobgraph.ConfigError{
			Field: "root",
			Err:   fmt.Errorf("%q: %w", root.Name, jobgraph.ErrUnknownJob),
		}
	}

	g := &job.Graph{
		Entity: jobgraph.NewEntity(),
		ID:     id.NewGraphID(),
		Name:   name,
		State:  job.GraphRunning,
	}
	rootJob := root.NewJob(g.ID, id.Nil, job.RelationRoot)
	g.RootID = rootJob.ID

	if err := eng.store.CreateGraph(ctx, g); err != nil {
		return GraphHandle{}, fmt.Errorf("create graph: %w", err)
	}
	if err := eng.store.CreateJob(ctx, rootJob); err != nil {
		return GraphHandle{}, fmt.Errorf("create root job: %w", err)
	}

	eng.mu.Lock()
	defer eng.out.flush()
	defer eng.mu.Unlock()

	gr := newGraphRun(g)
	gr.add(rootJob)
	eng.graphs[g.ID.String()] = gr

	gs, rs := graphSnapshot(g), rootJob.Clone()
	eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitGraphSubmitted(ctx, gs, rs) })
	eng.logger.Info("graph submitted",
		slog.String("graph_id", g.ID.String()),
		slog.String("graph_name", name),
		slog.String("root_job", rootJob.Name),
	)

	eng.release(ctx, gr, rootJob, -1)
	eng.reconcile(ctx, gr)

	return GraphHandle{ID: g.ID, Name: name}, nil
}

// Run blocks until the graph finishes or ctx is done. A graph that is
// not loaded is resumed from the store first.
func (eng *Engine) Run(ctx context.Context, h GraphHandle) (*RunResult, error) {
	gr, err := eng.lookup(ctx, h.ID)
	if err != nil {
		return nil, err
	}

	select {
	case <-gr.done:
	default:
		if !eng.c.Started() {
			return nil, jobgraph.ErrNotStarted
		}
	}

	select {
	case <-gr.done:
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return gr.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunAll waits for several graphs concurrently.
func (eng *Engine) RunAll(ctx context.Context, handles ...GraphHandle) ([]*RunResult, error) {
	results := make([]*RunResult, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			r, err := eng.Run(gctx, h)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Cancel stops scheduling new work for a graph. Jobs not yet started are
// cancelled; running jobs finish and the jobs they spawn are recorded as
// cancelled.
func (eng *Engine) Cancel(ctx context.Context, graphID id.GraphID) error {
	eng.mu.Lock()
	defer eng.out.flush()
	defer eng.mu.Unlock()

	gr := eng.graphs[graphID.String()]
	if gr == nil {
		return fmt.Errorf("cancel %s: %w", graphID, jobgraph.ErrGraphNotFound)
	}
	if gr.finished() {
		return nil
	}
	eng.logger.Info("cancelling graph", slog.String("graph_id", graphID.String()))
	eng.cancelGraph(ctx, gr)
	eng.reconcile(ctx, gr)
	return nil
}

// Resume loads a graph from the store and continues it. Jobs that were
// running or queued when the process stopped are made runnable again
// without spending a retry. Resuming a loaded graph is a no-op.
func (eng *Engine) Resume(ctx context.Context, graphID id.GraphID) error {
	_, err := eng.lookup(ctx, graphID)
	return err
}

// ResumeAll resumes every graph the store records as running and returns
// their handles.
func (eng *Engine) ResumeAll(ctx context.Context) ([]GraphHandle, error) {
	graphs, err := eng.store.ListGraphs(ctx, job.GraphRunning)
	if err != nil {
		return nil, fmt.Errorf("list running graphs: %w", err)
	}

	handles := make([]GraphHandle, len(graphs))
	g, gctx := errgroup.WithContext(ctx)
	for i, gm := range graphs {
		handles[i] = GraphHandle{ID: gm.ID, Name: gm.Name}
		g.Go(func() error {
			return eng.Resume(gctx, gm.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return handles, nil
}

// lookup returns the loaded state of a graph, loading it when needed.
func (eng *Engine) lookup(ctx context.Context, graphID id.GraphID) (*graphRun, error) {
	eng.mu.Lock()
	gr := eng.graphs[graphID.String()]
	eng.mu.Unlock()
	if gr != nil {
		return gr, nil
	}

	g, err := eng.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	jobs, err := eng.store.ListJobs(ctx, graphID)
	if err != nil {
		return nil, err
	}

	eng.mu.Lock()
	defer eng.out.flush()
	defer eng.mu.Unlock()
	if existing := eng.graphs[graphID.String()]; existing != nil {
		return existing, nil
	}

	gr = newGraphRun(g)
	for _, j := range jobs {
		gr.add(j)
	}
	eng.graphs[graphID.String()] = gr

	if g.State != job.GraphRunning {
		for _, j := range jobs {
			if j.State == job.StateFailed {
				gr.failures = append(gr.failures, storedFailure(j))
			}
		}
		var elapsed time.Duration
		if g.CompletedAt != nil {
			elapsed = g.CompletedAt.Sub(g.CreatedAt)
		}
		gr.result = gr.buildResult(elapsed)
		close(gr.done)
		return gr, nil
	}

	eng.restore(ctx, gr)
	eng.reconcile(ctx, gr)
	return gr, nil
}

// restore rebuilds counters from persisted job states and releases every
// job that is eligible to run.
func (eng *Engine) restore(ctx context.Context, gr *graphRun) {
	for _, key := range gr.order {
		j := gr.jobs[key]
		switch j.State {
		case job.StateRunning, job.StateRunnable:
			j.State = job.StatePending
			j.WorkerID = id.Nil
			j.StartedAt = nil
		case job.StateFailed:
			gr.failures = append(gr.failures, storedFailure(j))
		}
	}

	memo := make(map[string]bool)
	var isResolved func(j *job.Job) bool
	isResolved = func(j *job.Job) bool {
		key := j.ID.String()
		if v, ok := memo[key]; ok {
			return v
		}
		ok := j.State == job.StateSucceeded
		for _, c := range j.Children {
			if !ok {
				break
			}
			if cj := gr.jobs[c.String()]; cj == nil || !isResolved(cj) {
				ok = false
			}
		}
		if ok && !j.FollowOn.IsNil() {
			fo := gr.jobs[j.FollowOn.String()]
			ok = fo != nil && isResolved(fo)
		}
		memo[key] = ok
		return ok
	}

	for _, key := range gr.order {
		j := gr.jobs[key]
		if j.State != job.StateSucceeded {
			continue
		}
		n := 0
		for _, c := range j.Children {
			if cj := gr.jobs[c.String()]; cj == nil || !isResolved(cj) {
				n++
			}
		}
		gr.open[key] = n
	}

	for _, key := range gr.order {
		j := gr.jobs[key]
		if j.State != job.StatePending {
			continue
		}
		if eng.eligible(gr, j) {
			eng.release(ctx, gr, j, -1)
		}
	}

	eng.logger.Info("graph resumed",
		slog.String("graph_id", gr.graph.ID.String()),
		slog.Int("jobs", len(gr.order)),
		slog.Int("inflight", gr.inflight),
	)
}

// eligible reports whether a pending job's owner allows it to run.
func (eng *Engine) eligible(gr *graphRun, j *job.Job) bool {
	if j.ParentID.IsNil() {
		return true
	}
	p := gr.jobs[j.ParentID.String()]
	if p == nil || p.State != job.StateSucceeded {
		return false
	}
	switch j.Relation {
	case job.RelationChild:
		return true
	case job.RelationFollowOn:
		return gr.open[p.ID.String()] == 0
	}
	return false
}

func storedFailure(j *job.Job) Failure {
	return Failure{
		JobID: j.ID,
		Name:  j.Name,
		Kind:  j.ErrorKind,
		Err:   errors.New(j.LastError),
	}
}
