package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// QueueManager controls per-job-name rate limiting and concurrency. The
// pool calls Acquire before executing a job and Release after the attempt
// finishes.
type QueueManager interface {
	// Acquire reports whether a job with the given name may start now.
	Acquire(name string) bool
	// Release returns the slot taken by Acquire.
	Release(name string)
}

// Hooks connect the pool to the scheduler.
type Hooks struct {
	// Claim is called once a job has been admitted and right before it
	// executes. Returning false drops the job without running it.
	Claim func(ctx context.Context, j *job.Job, worker id.WorkerID) bool

	// Done receives the result of every executed attempt.
	Done func(ctx context.Context, r Result)
}

// Pool runs jobs on a fixed set of workers. Each worker owns a deque:
// jobs submitted with a worker's affinity go to that worker, which runs
// its newest work first, and idle workers steal the oldest work of
// others. Before a job runs, its resource request is admitted against
// the pool capacity.
type Pool struct {
	executor     *Executor
	hooks        Hooks
	concurrency  int
	capacity     job.Resources
	pollInterval time.Duration
	logger       *slog.Logger

	queueManager QueueManager

	cores  *semaphore.Weighted
	memory *semaphore.Weighted
	disk   *semaphore.Weighted

	workerIDs []id.WorkerID
	deques    []*deque
	wake      chan struct{}
	next      atomic.Uint64

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of workers.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithCapacity sets the resources shared by all workers. Non-positive
// fields leave that dimension unlimited.
func WithCapacity(r job.Resources) PoolOption {
	return func(p *Pool) { p.capacity = r }
}

// WithPollInterval sets how often idle workers look for stealable work
// when they have not been woken.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithQueueManager sets the per-job-name admission limits.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a worker pool.
func NewPool(executor *Executor, hooks Hooks, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		executor:     executor,
		hooks:        hooks,
		concurrency:  4,
		pollInterval: 250 * time.Millisecond,
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeJobs:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.capacity.Cores > 0 {
		p.cores = semaphore.NewWeighted(int64(p.capacity.Cores))
	}
	if p.capacity.Memory > 0 {
		p.memory = semaphore.NewWeighted(p.capacity.Memory)
	}
	if p.capacity.Disk > 0 {
		p.disk = semaphore.NewWeighted(p.capacity.Disk)
	}

	p.workerIDs = make([]id.WorkerID, p.concurrency)
	p.deques = make([]*deque, p.concurrency)
	for i := range p.concurrency {
		p.workerIDs[i] = id.NewWorkerID()
		p.deques[i] = &deque{}
	}
	p.wake = make(chan struct{}, p.concurrency)
	return p
}

// Concurrency returns the number of workers.
func (p *Pool) Concurrency() int { return p.concurrency }

// Submit queues j. A non-negative affinity places it on that worker's
// deque; otherwise workers are chosen round-robin.
func (p *Pool) Submit(j *job.Job, affinity int) {
	if affinity < 0 || affinity >= p.concurrency {
		affinity = int(p.next.Add(1) % uint64(p.concurrency))
	}
	p.deques[affinity].pushBack(j)
	p.signal()
}

// Remove drops a queued job and reports whether it was found. Jobs that
// already started are not affected.
func (p *Pool) Remove(jobID id.JobID) bool {
	key := jobID.String()
	for _, d := range p.deques {
		if d.remove(key) {
			return true
		}
	}
	return false
}

// Queued returns the number of jobs waiting in all deques.
func (p *Pool) Queued() int {
	n := 0
	for _, d := range p.deques {
		n += d.len()
	}
	return n
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Int("cores", p.capacity.Cores),
		slog.Int64("memory", p.capacity.Memory),
		slog.Int64("disk", p.capacity.Disk),
	)

	for i := range p.concurrency {
		p.wg.Add(1)
		go p.workLoop(i)
	}
	return nil
}

// Stop signals all workers to stop and waits for running attempts to
// finish. If ctx ends first, running attempts are cancelled. Queued jobs
// stay queued.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}
	return nil
}

// signal wakes one idle worker without blocking.
func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// workLoop is run by each worker goroutine.
func (p *Pool) workLoop(self int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		j := p.take(self)
		if j == nil {
			p.idle()
			continue
		}

		if p.queueManager != nil && !p.queueManager.Acquire(j.Name) {
			// Over the name's limit: put it back for later and let
			// another worker try something else.
			p.deques[self].pushFront(j)
			p.idle()
			continue
		}

		p.run(self, j)

		if p.queueManager != nil {
			p.queueManager.Release(j.Name)
		}
	}
}

// take pops the newest job of the worker's own deque, or steals the
// oldest job of another worker.
func (p *Pool) take(self int) *job.Job {
	if j := p.deques[self].popBack(); j != nil {
		return j
	}
	for i := 1; i < p.concurrency; i++ {
		victim := (self + i) % p.concurrency
		if j := p.deques[victim].popFront(); j != nil {
			return j
		}
	}
	return nil
}

func (p *Pool) idle() {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-p.wake:
	case <-timer.C:
	case <-p.stopCh:
	}
}

// run admits j against the capacity, executes it and reports the result.
func (p *Pool) run(self int, j *job.Job) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := j.ID.String()
	p.trackJob(key, cancel)
	defer p.untrackJob(key)

	release, err := p.admit(ctx, j.Resources)
	if err != nil {
		// Cancelled while waiting for capacity during shutdown; keep the
		// job queued so a later start picks it up.
		p.deques[self].pushFront(j)
		return
	}
	defer release()

	if p.hooks.Claim != nil && !p.hooks.Claim(ctx, j, p.workerIDs[self]) {
		return
	}

	res := p.executor.Execute(ctx, j)
	res.Worker = self
	if res.Err != nil {
		p.logger.Debug("job attempt failed",
			slog.String("job_id", key),
			slog.String("job_name", j.Name),
			slog.String("error", res.Err.Error()),
		)
	}
	if p.hooks.Done != nil {
		p.hooks.Done(context.Background(), res)
	}
}

// admit acquires the job's clamped request in a fixed order (cores,
// memory, disk) and returns a function that releases it.
func (p *Pool) admit(ctx context.Context, req job.Resources) (func(), error) {
	type held struct {
		sem *semaphore.Weighted
		n   int64
	}
	var acquired []held
	release := func() {
		for _, h := range acquired {
			h.sem.Release(h.n)
		}
	}

	steps := []struct {
		sem      *semaphore.Weighted
		request  int64
		capacity int64
	}{
		{p.cores, int64(req.Cores), int64(p.capacity.Cores)},
		{p.memory, req.Memory, p.capacity.Memory},
		{p.disk, req.Disk, p.capacity.Disk},
	}
	for _, s := range steps {
		if s.sem == nil || s.request <= 0 {
			continue
		}
		n := min(s.request, s.capacity)
		if err := s.sem.Acquire(ctx, n); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, held{sem: s.sem, n: n})
	}
	return release, nil
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
