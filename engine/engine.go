package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/artifact/localfs"
	"github.com/xraph/jobgraph/backoff"
	"github.com/xraph/jobgraph/ext"
	"github.com/xraph/jobgraph/job"
	mw "github.com/xraph/jobgraph/middleware"
	"github.com/xraph/jobgraph/observability"
	"github.com/xraph/jobgraph/queue"
	"github.com/xraph/jobgraph/store"
	"github.com/xraph/jobgraph/worker"
)

// Engine schedules job graphs on top of a Coordinator.
// Use Build() to create one.
type Engine struct {
	c          *jobgraph.Coordinator
	store      store.Store
	extensions *ext.Registry
	registry   *job.Registry
	artifacts  *artifact.Manager
	pool       *worker.Pool
	bo         backoff.Strategy
	mws        []mw.Middleware
	logger     *slog.Logger

	backend     artifact.Backend
	cacheDir    string
	toolTimeout time.Duration

	limits []queue.Config
	queues *queue.Manager // nil without limits

	// nil falls back to the otel globals
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu     sync.Mutex
	graphs map[string]*graphRun // graph ID → scheduling state
	out    outbox               // drained after mu is released
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension subscribes e to graph, job and artifact lifecycle hooks.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.extensions.Register(e) }
}

// WithMiddleware adds middleware to the engine's chain. It runs inside
// the default middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the delay before a failed job is run again. Defaults to
// backoff.DefaultStrategy.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithQueueConfig caps how many jobs of a name run at once and how fast
// they start. Names matching no config are unlimited.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) { eng.limits = append(eng.limits, configs...) }
}

// WithArtifactBackend sets where artifact bytes are stored. If not set,
// a local-disk backend under the coordinator's work root is used.
func WithArtifactBackend(b artifact.Backend) Option {
	return func(eng *Engine) {
		eng.backend = b
	}
}

// WithArtifactCacheDir sets the node-local artifact cache directory.
func WithArtifactCacheDir(dir string) Option {
	return func(eng *Engine) {
		eng.cacheDir = dir
	}
}

// WithToolTimeout bounds every attempt of a job that sets no timeout of
// its own. Zero, the default, leaves attempts unbounded.
func WithToolTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		eng.toolTimeout = d
	}
}

// WithTracerProvider records one span per attempt on tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sends attempt metrics and lifecycle counters to mp
// instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build creates an Engine from an existing Coordinator.
// The Coordinator's store must implement store.Store.
func Build(c *jobgraph.Coordinator, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	cfg := c.Config()

	if c.Store() == nil {
		return nil, jobgraph.ErrNoStore
	}
	s, ok := c.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("jobgraph: store does not implement store.Store")
	}

	eng := &Engine{
		c:          c,
		store:      s,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		logger:     logger,
		cacheDir:   filepath.Join(cfg.WorkRoot, "cache"),
		graphs:     make(map[string]*graphRun),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	if eng.backend == nil {
		be, err := localfs.New(filepath.Join(cfg.WorkRoot, "artifacts"))
		if err != nil {
			return nil, err
		}
		eng.backend = be
	}
	am, err := artifact.NewManager(s, eng.backend, eng.cacheDir,
		artifact.WithLogger(logger),
		artifact.WithObserver(eng.onArtifactSealed),
	)
	if err != nil {
		return nil, err
	}
	eng.artifacts = am

	// Outermost first: tracing, metrics, logging, recover, timeout, then
	// caller middleware closest to the handler.
	chain := eng.telemetry()
	chain = append(chain, mw.Default(mw.Deps{Logger: logger, ToolTimeout: eng.toolTimeout})...)
	chain = append(chain, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.artifacts, logger, chain,
		worker.WithWorkRoot(filepath.Join(cfg.WorkRoot, "jobs")),
		worker.WithKeepWorkDirs(cfg.KeepWorkDirs),
	)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithCapacity(job.Resources{Cores: cfg.Cores, Memory: cfg.Memory, Disk: cfg.Disk}),
		worker.WithPollInterval(cfg.PollInterval),
	}

	if len(eng.limits) > 0 {
		eng.queues = queue.NewManager(eng.limits...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queues))
	}

	eng.pool = worker.NewPool(executor, worker.Hooks{
		Claim: eng.claim,
		Done:  eng.complete,
	}, logger, poolOpts...)

	c.SetPool(eng.pool)
	c.SetExtensions(eng.extensions)

	return eng, nil
}

// Register makes def spawnable by name. Register every definition a graph
// can reach before submitting or resuming it.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Start begins job processing by starting the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine. Pending retry timers are
// stopped; the affected jobs stay runnable in the store and are picked up
// by Resume.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	for _, gr := range eng.graphs {
		for key, t := range gr.timers {
			t.Stop()
			delete(gr.timers, key)
		}
	}
	eng.mu.Unlock()

	return eng.c.Stop(ctx)
}

func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }
func (eng *Engine) Registry() *job.Registry   { return eng.registry }

// Artifacts returns the artifact manager.
func (eng *Engine) Artifacts() *artifact.Manager { return eng.artifacts }

// Store returns the engine's store.
func (eng *Engine) Store() store.Store { return eng.store }

// Coordinator returns the underlying Coordinator.
func (eng *Engine) Coordinator() *jobgraph.Coordinator { return eng.c }

// QueueManager returns the per-name limiter, or nil when no QueueConfig
// was given.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queues }

// telemetry registers the lifecycle metrics extension and returns the
// tracing and metrics middleware, bound to the configured providers.
func (eng *Engine) telemetry() []mw.Middleware {
	const scope = "github.com/xraph/jobgraph"

	tracing, metrics := mw.Tracing(), mw.Metrics()
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer(scope))
	}
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter(scope))
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(scope + "/observability")))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	return []mw.Middleware{tracing, metrics}
}
