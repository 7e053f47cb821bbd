package jobgraph

import (
	"context"
	"log/slog"
)

// Option configures a Coordinator.
type Option func(*Coordinator) error

// Storer is the minimal store interface held by the Coordinator. It
// covers lifecycle operations only; the full composite interface
// (store.Store) is used by the engine layer, which does not create
// import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Coordinator owns the configuration, logger and store shared by every
// jobgraph subsystem. Create one with New and functional options, then
// hand it to engine.Build, which wires the worker pool and extensions
// back into it.
type Coordinator struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	started bool
}

// New creates a new Coordinator with the given options.
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the coordinator's logger.
func (c *Coordinator) Logger() *slog.Logger { return c.logger }

// Store returns the coordinator's store.
func (c *Coordinator) Store() Storer { return c.store }

// Config returns a copy of the coordinator's configuration.
func (c *Coordinator) Config() Config { return c.config }

// SetPool sets the worker pool (called by the engine package).
func (c *Coordinator) SetPool(p poolRunner) { c.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (c *Coordinator) SetExtensions(e extensionEmitter) { c.extensions = e }

// Started reports whether Start has been called without a matching Stop.
func (c *Coordinator) Started() bool { return c.started }

// Start begins job processing.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.pool == nil {
		return ErrNotStarted
	}
	if err := c.pool.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// Stop gracefully shuts down the coordinator and closes the store.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.pool != nil && c.started {
		if err := c.pool.Stop(ctx); err != nil {
			c.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		c.started = false
	}
	if c.extensions != nil {
		c.extensions.EmitShutdown(ctx)
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithConcurrency sets the number of work-stealing workers.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) error {
		if n <= 0 {
			return &ConfigError{Field: "concurrency", Err: ErrInvalidState}
		}
		c.config.Concurrency = n
		return nil
	}
}

// WithCapacity sets the admission capacity shared by all workers.
// Zero values keep the defaults.
func WithCapacity(cores int, memory, disk int64) Option {
	return func(c *Coordinator) error {
		if cores > 0 {
			c.config.Cores = cores
		}
		if memory > 0 {
			c.config.Memory = memory
		}
		if disk > 0 {
			c.config.Disk = disk
		}
		return nil
	}
}

// WithWorkRoot sets the directory under which job working directories
// are created.
func WithWorkRoot(dir string) Option {
	return func(c *Coordinator) error {
		c.config.WorkRoot = dir
		return nil
	}
}

// WithKeepWorkDirs keeps attempt directories after jobs finish.
func WithKeepWorkDirs(keep bool) Option {
	return func(c *Coordinator) error {
		c.config.KeepWorkDirs = keep
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) error {
		c.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. The store must implement Storer
// at minimum; engine.Build additionally requires job.Store and
// artifact.Store.
func WithStore(s Storer) Option {
	return func(c *Coordinator) error {
		c.store = s
		return nil
	}
}
