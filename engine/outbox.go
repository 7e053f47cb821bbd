package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xraph/jobgraph/job"
)

// outbox holds store writes and lifecycle events recorded while Engine.mu
// is held. They run in the order they were enqueued, by a single flusher,
// after the lock is released, so a slow store or extension never stalls
// scheduling.
type outbox struct {
	mu       sync.Mutex
	ops      []func()
	flushing bool
}

// enqueue appends op. Callers hold Engine.mu.
func (o *outbox) enqueue(op func()) {
	o.mu.Lock()
	o.ops = append(o.ops, op)
	o.mu.Unlock()
}

// call enqueues fn and returns a channel that receives its result once
// the outbox reaches it.
func (o *outbox) call(fn func() error) <-chan error {
	ch := make(chan error, 1)
	o.enqueue(func() { ch <- fn() })
	return ch
}

// flush runs queued ops until the outbox is empty. When another goroutine
// is already flushing it returns at once; that goroutine picks up the ops.
// Callers must not hold Engine.mu.
func (o *outbox) flush() {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	for len(o.ops) > 0 {
		batch := o.ops
		o.ops = nil
		o.mu.Unlock()
		for _, op := range batch {
			op()
		}
		o.mu.Lock()
	}
	o.flushing = false
	o.mu.Unlock()
}

// persist queues a write of j's current state. In-memory state stays
// authoritative for the running engine; a failed write surfaces on Resume.
func (eng *Engine) persist(ctx context.Context, j *job.Job) {
	snap := j.Clone()
	ctx = context.WithoutCancel(ctx)
	eng.out.enqueue(func() {
		if err := eng.store.UpdateJob(ctx, snap); err != nil {
			eng.logger.Error("persist job failed",
				slog.String("job_id", snap.ID.String()),
				slog.String("state", string(snap.State)),
				slog.String("error", err.Error()),
			)
		}
	})
}

// emit queues a lifecycle event. fn must only touch values captured as
// snapshots.
func (eng *Engine) emit(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	eng.out.enqueue(func() { fn(ctx) })
}

// graphSnapshot copies the graph record for an event or a write.
func graphSnapshot(g *job.Graph) *job.Graph {
	cp := *g
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
