package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact/localfs"
	"github.com/xraph/jobgraph/artifact/rclone"
	audithook "github.com/xraph/jobgraph/audit_hook"
	"github.com/xraph/jobgraph/container"
	"github.com/xraph/jobgraph/engine"
	"github.com/xraph/jobgraph/pipeline"
	"github.com/xraph/jobgraph/process"
	relayhook "github.com/xraph/jobgraph/relay_hook"
	"github.com/xraph/jobgraph/store"
	bunstore "github.com/xraph/jobgraph/store/bun"
	"github.com/xraph/jobgraph/store/memory"
	"github.com/xraph/jobgraph/store/mongo"
	"github.com/xraph/jobgraph/store/postgres"
	"github.com/xraph/jobgraph/store/redis"
	"github.com/xraph/jobgraph/transfer"
)

var (
	errStoreURL     = errors.New("store url is required")
	errResumeMemory = errors.New("the memory store keeps nothing to resume")
)

// app is one process worth of wiring.
type app struct {
	settings *Settings
	logger   *slog.Logger
	store    store.Store
	engine   *engine.Engine
	runner   *pipeline.Runner

	closers []func() error
}

// openStore connects the configured backend.
func openStore(ctx context.Context, s StoreSettings, logger *slog.Logger) (store.Store, func() error, error) {
	driver := store.Driver(s.Driver)
	if driver != "" && !slices.Contains(store.Drivers(), driver) {
		return nil, nil, &jobgraph.ConfigError{Field: "store.driver", Err: fmt.Errorf("unknown driver %q", s.Driver)}
	}
	if driver.Durable() && s.URL == "" {
		return nil, nil, &jobgraph.ConfigError{Field: "store.url", Err: errStoreURL}
	}

	switch driver {
	case store.DriverPostgres:
		st, err := postgres.New(ctx, s.URL, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil

	case store.DriverBun:
		return bunstore.Open(s.URL, bunstore.WithLogger(logger)), nil, nil

	case store.DriverMongo:
		st, err := mongo.New(ctx, s.URL, mongo.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil

	case store.DriverRedis:
		opts, err := goredis.ParseURL(s.URL)
		if err != nil {
			return nil, nil, &jobgraph.ConfigError{Field: "store.url", Err: err}
		}
		client := goredis.NewClient(opts)
		return redis.New(client, redis.WithLogger(logger), redis.WithKeyPrefix(s.Prefix)), client.Close, nil
	}
	return memory.New(), nil, nil
}

// newApp connects the store and builds the engine and pipeline runner.
// masterKey may be nil.
func newApp(ctx context.Context, s *Settings, logger *slog.Logger, masterKey []byte) (*app, error) {
	a := &app{settings: s, logger: logger}

	st, closeClient, err := openStore(ctx, s.Store, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	if closeClient != nil {
		a.closers = append(a.closers, closeClient)
	}

	if err := st.Ping(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		a.close()
		return nil, err
	}

	opts := []jobgraph.Option{
		jobgraph.WithStore(st),
		jobgraph.WithLogger(logger),
		jobgraph.WithKeepWorkDirs(s.Work.Keep),
		jobgraph.WithCapacity(s.Work.Cores, s.Work.MemoryGiB<<30, s.Work.DiskGiB<<30),
	}
	if s.Work.Dir != "" {
		opts = append(opts, jobgraph.WithWorkRoot(s.Work.Dir))
	}
	if s.Work.Concurrency > 0 {
		opts = append(opts, jobgraph.WithConcurrency(s.Work.Concurrency))
	}
	c, err := jobgraph.New(opts...)
	if err != nil {
		a.close()
		return nil, err
	}

	runner := process.NewExecRunner(logger)
	engOpts := []engine.Option{
		engine.WithToolTimeout(s.Work.ToolTimeout),
		engine.WithQueueConfig(pipeline.TransferLimits(s.Transfer.MaxConcurrent)...),
	}
	if s.Artifacts.Dir != "" {
		engOpts = append(engOpts, engine.WithArtifactCacheDir(filepath.Join(s.Artifacts.Dir, "cache")))
	}
	if s.Artifacts.Rclone.RemoteName != "" {
		backend := rclone.New(s.Artifacts.Rclone, runner, logger)
		if err := backend.Check(ctx); err != nil {
			a.close()
			return nil, err
		}
		engOpts = append(engOpts, engine.WithArtifactBackend(backend))
	} else if s.Artifacts.Dir != "" {
		backend, err := localfs.New(filepath.Join(s.Artifacts.Dir, "objects"))
		if err != nil {
			a.close()
			return nil, err
		}
		engOpts = append(engOpts, engine.WithArtifactBackend(backend))
	}

	if s.NATS.URL != "" {
		nc, err := relayhook.Connect(s.NATS.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { return nc.Drain() })
		engOpts = append(engOpts, engine.WithExtension(
			relayhook.New(nc,
				relayhook.WithSubjectPrefix(s.NATS.Prefix),
				relayhook.WithCodec(relayhook.GetCodec(s.NATS.Codec)),
			),
		))
	}
	if s.Audit {
		engOpts = append(engOpts, engine.WithExtension(
			audithook.New(audithook.NewSlogRecorder(logger),
				audithook.WithLogger(logger),
				audithook.WithMinSeverity(s.Log.AuditSeverity),
			),
		))
	}

	eng, err := engine.Build(c, engOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = eng

	transfers := transfer.NewClient(runner,
		transfer.WithAttempts(s.Transfer.Attempts),
		transfer.WithBaseURL(s.Transfer.BaseURL),
		transfer.WithLogger(logger),
	)
	tools := container.NewInvoker(runner, container.WithLogger(logger))

	runnerOpts := []pipeline.RunnerOption{pipeline.WithLogger(logger)}
	if masterKey != nil {
		runnerOpts = append(runnerOpts, pipeline.WithMasterKey(masterKey))
	}
	a.runner = pipeline.NewRunner(eng, transfers, tools, runnerOpts...)
	return a, nil
}

// start starts the engine.
func (a *app) start(ctx context.Context) error {
	return a.engine.Start(ctx)
}

// shutdown stops the engine, which closes the store, then releases every
// client the store does not own.
func (a *app) shutdown(ctx context.Context) {
	if a.engine != nil {
		if err := a.engine.Stop(ctx); err != nil && !errors.Is(err, jobgraph.ErrStoreClosed) {
			a.logger.Warn("engine stop", slog.String("error", err.Error()))
		}
	}
	a.closeClients()
}

// close releases everything without a started engine.
func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	a.closeClients()
}

func (a *app) closeClients() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
