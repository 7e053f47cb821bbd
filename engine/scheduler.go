package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
	"github.com/xraph/jobgraph/worker"
)

// graphRun is the in-memory scheduling state of one graph. Every field is
// guarded by Engine.mu.
//
// A job is resolved once it succeeded, all of its children are resolved
// and its follow-on, if any, is resolved. A follow-on is released when
// its owner succeeded and every child of the owner is resolved.
type graphRun struct {
	graph *job.Graph
	jobs  map[string]*job.Job
	order []string // creation order

	// open counts the unresolved children of each succeeded job.
	open map[string]int

	// waiting holds released jobs whose inputs are not sealed yet.
	waiting map[string]struct{}

	// inflight counts Runnable and Running jobs.
	inflight int

	timers    map[string]*time.Timer
	failures  []Failure
	cancelled bool
	start     time.Time
	done      chan struct{}
	result    *RunResult
}

func newGraphRun(g *job.Graph) *graphRun {
	return &graphRun{
		graph:   g,
		jobs:    make(map[string]*job.Job),
		open:    make(map[string]int),
		waiting: make(map[string]struct{}),
		timers:  make(map[string]*time.Timer),
		start:   time.Now(),
		done:    make(chan struct{}),
	}
}

func (gr *graphRun) add(j *job.Job) {
	key := j.ID.String()
	if _, ok := gr.jobs[key]; !ok {
		gr.order = append(gr.order, key)
	}
	gr.jobs[key] = j
}

func (gr *graphRun) finished() bool { return gr.result != nil }

// ──────────────────────────────────────────────────
// Pool hooks
// ──────────────────────────────────────────────────

// claim marks a job Running right before a worker executes it.
func (eng *Engine) claim(ctx context.Context, j *job.Job, worker id.WorkerID) bool {
	eng.mu.Lock()
	defer eng.out.flush()
	defer eng.mu.Unlock()

	gr := eng.graphs[j.GraphID.String()]
	if gr == nil {
		return false
	}
	rec := gr.jobs[j.ID.String()]
	if rec == nil || rec.State != job.StateRunnable {
		return false
	}

	now := time.Now().UTC()
	rec.State = job.StateRunning
	rec.Attempts++
	rec.WorkerID = worker
	rec.StartedAt = &now
	rec.Touch()
	eng.persist(ctx, rec)

	j.State = rec.State
	j.Attempts = rec.Attempts
	j.WorkerID = rec.WorkerID
	j.StartedAt = rec.StartedAt

	snap := rec.Clone()
	eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitJobStarted(ctx, snap) })
	return true
}

// complete applies the result of an attempt to the graph. A success is
// committed with the jobs it spawned outside Engine.mu and applied once
// the store accepted it.
func (eng *Engine) complete(ctx context.Context, res worker.Result) {
	eng.mu.Lock()
	gr := eng.graphs[res.Job.GraphID.String()]
	if gr == nil {
		eng.mu.Unlock()
		eng.logger.Warn("result for unknown graph",
			slog.String("graph_id", res.Job.GraphID.String()),
			slog.String("job_id", res.Job.ID.String()),
		)
		return
	}
	rec := gr.jobs[res.Job.ID.String()]
	if rec == nil || rec.State != job.StateRunning {
		eng.mu.Unlock()
		return
	}
	if res.Err != nil {
		gr.inflight--
		eng.failAttempt(ctx, gr, rec, res.Err, res.Worker)
		eng.reconcile(ctx, gr)
		eng.mu.Unlock()
		eng.out.flush()
		return
	}

	next, spawned := successor(rec, res, gr.cancelled)
	commitCtx := context.WithoutCancel(ctx)
	committed := eng.out.call(func() error {
		return eng.store.CommitJob(commitCtx, next, spawned)
	})
	eng.mu.Unlock()
	eng.out.flush()
	err := <-committed

	eng.mu.Lock()
	defer eng.out.flush()
	defer eng.mu.Unlock()
	gr.inflight--
	if err != nil {
		eng.failAttempt(ctx, gr, rec, fmt.Errorf("commit job %s: %w", rec.ID, err), res.Worker)
	} else {
		eng.succeed(ctx, gr, rec, next, spawned, res)
	}
	eng.reconcile(ctx, gr)
}

// successor builds the Succeeded record of rec and the jobs its attempt
// spawned. Spawned jobs of a cancelled graph are recorded as cancelled.
func successor(rec *job.Job, res worker.Result, cancelled bool) (*job.Job, []*job.Job) {
	now := time.Now().UTC()

	next := rec.Clone()
	next.State = job.StateSucceeded
	next.CompletedAt = &now
	next.LastError = ""
	next.ErrorKind = ""
	next.Children = make([]id.JobID, 0, len(res.Children))
	next.Touch()

	spawned := make([]*job.Job, 0, len(res.Children)+1)
	for _, c := range res.Children {
		next.Children = append(next.Children, c.ID)
		spawned = append(spawned, c)
	}
	if res.FollowOn != nil {
		next.FollowOn = res.FollowOn.ID
		spawned = append(spawned, res.FollowOn)
	}
	if cancelled {
		for _, s := range spawned {
			s.State = job.StateCancelled
			s.CompletedAt = &now
		}
	}
	return next, spawned
}

// succeed applies a committed success. The graph may have been cancelled
// while the commit was in flight; spawned jobs then never start.
func (eng *Engine) succeed(ctx context.Context, gr *graphRun, rec, next *job.Job, spawned []*job.Job, res worker.Result) {
	*rec = *next
	for _, s := range spawned {
		gr.add(s)
	}

	done, elapsed := rec.Clone(), res.Elapsed
	eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitJobCompleted(ctx, done, elapsed) })
	for _, s := range spawned {
		child := s.Clone()
		eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitJobSpawned(ctx, done, child) })
		if s.State == job.StateCancelled {
			eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitJobCancelled(ctx, child) })
		}
	}
	if gr.cancelled {
		for _, s := range spawned {
			eng.cancelJob(ctx, gr, s)
		}
		return
	}

	gr.open[rec.ID.String()] = len(res.Children)
	for _, c := range res.Children {
		eng.release(ctx, gr, c, res.Worker)
	}
	if len(res.Children) == 0 {
		eng.childrenResolved(ctx, gr, rec)
	}
}

// failAttempt either schedules a retry or records a permanent failure.
func (eng *Engine) failAttempt(ctx context.Context, gr *graphRun, rec *job.Job, err error, affinity int) {
	kind := jobgraph.KindOf(err)
	rec.LastError = err.Error()
	rec.ErrorKind = kind

	if !gr.cancelled && jobgraph.Retryable(err) && rec.RetriesRemaining > 0 {
		rec.RetriesRemaining--
		rec.State = job.StateRunnable
		rec.Touch()
		eng.persist(ctx, rec)
		gr.inflight++

		delay := eng.bo.Delay(rec.Attempts)
		snap, next := rec.Clone(), rec.Attempts+1
		eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitJobRetrying(ctx, snap, next, delay) })
		eng.logger.Info("retrying job",
			slog.String("job_id", rec.ID.String()),
			slog.String("job_name", rec.Name),
			slog.Int("attempt", rec.Attempts+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		graphKey, jobKey := gr.graph.ID.String(), rec.ID.String()
		gr.timers[jobKey] = time.AfterFunc(delay, func() {
			eng.resubmit(graphKey, jobKey, affinity)
		})
		return
	}

	eng.terminalFailure(ctx, gr, rec, err)
	if kind == jobgraph.KindConfig {
		eng.logger.Error("configuration error, cancelling graph",
			slog.String("graph_id", gr.graph.ID.String()),
			slog.String("job_id", rec.ID.String()),
			slog.String("error", err.Error()),
		)
		eng.cancelGraph(ctx, gr)
	}
}

// resubmit puts a job whose retry delay elapsed back on the pool.
func (eng *Engine) resubmit(graphKey, jobKey string, affinity int) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	gr := eng.graphs[graphKey]
	if gr == nil {
		return
	}
	delete(gr.timers, jobKey)
	rec := gr.jobs[jobKey]
	if rec == nil || rec.State != job.StateRunnable {
		return
	}
	eng.pool.Submit(rec.Clone(), affinity)
}

// terminalFailure marks rec Failed and cancels the follow-ons that can no
// longer run because rec's ancestors will never resolve.
func (eng *Engine) terminalFailure(ctx context.Context, gr *graphRun, rec *job.Job, err error) {
	now := time.Now().UTC()
	rec.State = job.StateFailed
	rec.CompletedAt = &now
	rec.LastError = err.Error()
	rec.ErrorKind = jobgraph.KindOf(err)
	rec.Touch()
	eng.persist(ctx, rec)

	gr.failures = append(gr.failures, Failure{
		JobID: rec.ID,
		Name:  rec.Name,
		Kind:  jobgraph.KindOf(err),
		Err:   err,
	})
	snap := rec.Clone()
	eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitJobFailed(ctx, snap, err) })
	eng.logger.Error("job failed",
		slog.String("job_id", rec.ID.String()),
		slog.String("job_name", rec.Name),
		slog.Int("attempts", rec.Attempts),
		slog.String("error", err.Error()),
	)

	eng.cancelAncestorFollowOns(ctx, gr, rec)
}

func (eng *Engine) cancelAncestorFollowOns(ctx context.Context, gr *graphRun, j *job.Job) {
	cur := j
	for !cur.ParentID.IsNil() {
		p := gr.jobs[cur.ParentID.String()]
		if p == nil {
			return
		}
		if cur.Relation == job.RelationChild && !p.FollowOn.IsNil() {
			if fo := gr.jobs[p.FollowOn.String()]; fo != nil && fo.State == job.StatePending {
				eng.cancelJob(ctx, gr, fo)
			}
		}
		cur = p
	}
}

// ──────────────────────────────────────────────────
// Readiness
// ──────────────────────────────────────────────────

// release makes j runnable when its inputs are sealed, and parks it in
// the waiting set otherwise.
func (eng *Engine) release(ctx context.Context, gr *graphRun, j *job.Job, affinity int) {
	if gr.cancelled {
		eng.cancelJob(ctx, gr, j)
		return
	}
	if !eng.inputsSealed(ctx, j) {
		gr.waiting[j.ID.String()] = struct{}{}
		return
	}
	delete(gr.waiting, j.ID.String())

	j.State = job.StateRunnable
	j.Touch()
	eng.persist(ctx, j)
	gr.inflight++
	eng.pool.Submit(j.Clone(), affinity)
}

func (eng *Engine) inputsSealed(ctx context.Context, j *job.Job) bool {
	if len(j.Inputs) == 0 {
		return true
	}
	ok, err := eng.artifacts.Sealed(ctx, j.Inputs...)
	if err != nil {
		eng.logger.Warn("input check failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

// childrenResolved runs once j succeeded and all of its children are
// resolved. It releases j's follow-on or resolves j.
func (eng *Engine) childrenResolved(ctx context.Context, gr *graphRun, j *job.Job) {
	if !j.FollowOn.IsNil() {
		if fo := gr.jobs[j.FollowOn.String()]; fo != nil && fo.State == job.StatePending {
			eng.release(ctx, gr, fo, -1)
		}
		return
	}
	eng.resolved(ctx, gr, j)
}

// resolved propagates the resolution of j to its owner.
func (eng *Engine) resolved(ctx context.Context, gr *graphRun, j *job.Job) {
	if j.ParentID.IsNil() {
		return
	}
	p := gr.jobs[j.ParentID.String()]
	if p == nil {
		return
	}
	switch j.Relation {
	case job.RelationChild:
		key := p.ID.String()
		gr.open[key]--
		if gr.open[key] == 0 {
			eng.childrenResolved(ctx, gr, p)
		}
	case job.RelationFollowOn:
		eng.resolved(ctx, gr, p)
	}
}

// onArtifactSealed is the artifact manager observer.
func (eng *Engine) onArtifactSealed(ctx context.Context, a *artifact.Artifact) {
	eng.extensions.EmitArtifactSealed(ctx, a)

	eng.mu.Lock()
	defer eng.out.flush()
	defer eng.mu.Unlock()
	for _, gr := range eng.graphs {
		if len(gr.waiting) > 0 && !gr.finished() {
			eng.wakeWaiting(ctx, gr)
		}
	}
}

func (eng *Engine) wakeWaiting(ctx context.Context, gr *graphRun) {
	for _, key := range gr.order {
		if _, ok := gr.waiting[key]; !ok {
			continue
		}
		j := gr.jobs[key]
		if eng.inputsSealed(ctx, j) {
			eng.release(ctx, gr, j, -1)
		}
	}
}

// ──────────────────────────────────────────────────
// Cancellation and completion
// ──────────────────────────────────────────────────

// cancelJob cancels a job that has not started. Running jobs are left to
// finish.
func (eng *Engine) cancelJob(ctx context.Context, gr *graphRun, j *job.Job) {
	key := j.ID.String()
	switch j.State {
	case job.StateRunnable:
		if t, ok := gr.timers[key]; ok {
			t.Stop()
			delete(gr.timers, key)
		} else {
			eng.pool.Remove(j.ID)
		}
		gr.inflight--
	case job.StatePending:
		delete(gr.waiting, key)
	default:
		return
	}

	now := time.Now().UTC()
	j.State = job.StateCancelled
	j.CompletedAt = &now
	j.Touch()
	eng.persist(ctx, j)
	snap := j.Clone()
	eng.emit(ctx, func(ctx context.Context) { eng.extensions.EmitJobCancelled(ctx, snap) })
}

func (eng *Engine) cancelGraph(ctx context.Context, gr *graphRun) {
	if gr.cancelled {
		return
	}
	gr.cancelled = true
	for _, key := range gr.order {
		eng.cancelJob(ctx, gr, gr.jobs[key])
	}
}

// reconcile wakes waiting jobs and finishes the graph once nothing is in
// flight.
func (eng *Engine) reconcile(ctx context.Context, gr *graphRun) {
	if gr.finished() {
		return
	}
	if !gr.cancelled && len(gr.waiting) > 0 {
		eng.wakeWaiting(ctx, gr)
	}
	if gr.inflight > 0 {
		return
	}

	// Nothing can seal the inputs of the remaining waiters.
	for _, key := range gr.order {
		if _, ok := gr.waiting[key]; !ok {
			continue
		}
		j := gr.jobs[key]
		delete(gr.waiting, key)
		if j.State != job.StatePending {
			continue
		}
		eng.terminalFailure(ctx, gr, j, fmt.Errorf("job %s (%s): %w", j.Name, j.ID, jobgraph.ErrInputsNotSealed))
	}

	eng.finish(ctx, gr)
}

func (eng *Engine) finish(ctx context.Context, gr *graphRun) {
	// Jobs that can never become eligible are cancelled.
	for _, key := range gr.order {
		if j := gr.jobs[key]; j.State == job.StatePending {
			eng.cancelJob(ctx, gr, j)
		}
	}

	switch {
	case len(gr.failures) > 0:
		gr.graph.State = job.GraphFailed
	case gr.cancelled:
		gr.graph.State = job.GraphCancelled
	default:
		gr.graph.State = job.GraphSucceeded
	}
	now := time.Now().UTC()
	gr.graph.CompletedAt = &now
	gr.graph.Touch()
	gr.result = gr.buildResult(time.Since(gr.start))

	g, result, done := graphSnapshot(gr.graph), gr.result, gr.done
	storeCtx := context.WithoutCancel(ctx)
	eng.out.enqueue(func() {
		if err := eng.store.UpdateGraph(storeCtx, g); err != nil {
			eng.logger.Error("persist graph failed",
				slog.String("graph_id", g.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	})
	eng.emit(ctx, func(ctx context.Context) {
		switch g.State {
		case job.GraphSucceeded:
			eng.extensions.EmitGraphCompleted(ctx, g, result.Elapsed)
		case job.GraphCancelled:
			eng.extensions.EmitGraphFailed(ctx, g, jobgraph.ErrGraphCancelled)
		default:
			eng.extensions.EmitGraphFailed(ctx, g, result.Err())
		}
	})
	eng.logger.Info("graph finished",
		slog.String("graph_id", gr.graph.ID.String()),
		slog.String("graph_name", gr.graph.Name),
		slog.String("state", string(gr.graph.State)),
		slog.Int("failed", len(gr.failures)),
		slog.Duration("elapsed", gr.result.Elapsed),
	)
	// Run returns once every write of the graph has landed.
	eng.out.enqueue(func() { close(done) })
}

func (gr *graphRun) buildResult(elapsed time.Duration) *RunResult {
	r := &RunResult{
		GraphID: gr.graph.ID,
		Name:    gr.graph.Name,
		State:   gr.graph.State,
		Failed:  append([]Failure(nil), gr.failures...),
		Elapsed: elapsed,
	}
	for _, key := range gr.order {
		switch gr.jobs[key].State {
		case job.StateSucceeded:
			r.Succeeded++
		case job.StateCancelled:
			r.Cancelled++
		}
	}
	return r
}
