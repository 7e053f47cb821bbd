package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/container"
	"github.com/xraph/jobgraph/engine"
	"github.com/xraph/jobgraph/job"
	"github.com/xraph/jobgraph/queue"
	"github.com/xraph/jobgraph/transfer"
)

// Job definition names.
const (
	JobStart          = "pipeline.start"
	JobSpawnSamples   = "pipeline.spawn-samples"
	JobDownload       = "transfer.download"
	JobUpload         = "transfer.upload"
	JobAdtexCoverage  = "adtex.coverage"
	JobZygosityInputs = "adtex.zygosity.inputs"
	JobZygosityRun    = "adtex.zygosity.run"
	JobMuse           = "muse.call"
)

// zygosityUploadDisk is the scratch request of zygosity result uploads.
const zygosityUploadDisk = 80 << 30

// TransferLimits returns queue limits that cap concurrent downloads and
// uploads at n each. Pass them to engine.WithQueueConfig.
func TransferLimits(n int) []queue.Config {
	if n <= 0 {
		return nil
	}
	return []queue.Config{
		{Name: JobDownload, MaxConcurrency: n},
		{Name: JobUpload, MaxConcurrency: n},
	}
}

// Runner registers the pipeline job definitions on an engine and submits
// pipeline graphs.
type Runner struct {
	eng       *engine.Engine
	transfers *transfer.Client
	tools     *container.Invoker
	logger    *slog.Logger

	mu        sync.RWMutex
	masterKey []byte

	start          *job.Definition[startPayload]
	spawnSamples   *job.Definition[startPayload]
	download       *job.Definition[downloadPayload]
	upload         *job.Definition[uploadPayload]
	adtexCoverage  *job.Definition[samplePayload]
	zygosityInputs *job.Definition[samplePayload]
	zygosityRun    *job.Definition[samplePayload]
	muse           *job.Definition[samplePayload]
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMasterKey loads the SSE-C master key used by encrypted graphs,
// including graphs resumed from the store.
func WithMasterKey(key []byte) RunnerOption {
	return func(r *Runner) { r.masterKey = key }
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner and registers every pipeline definition on
// eng. It must be called before the engine resumes graphs.
func NewRunner(eng *engine.Engine, transfers *transfer.Client, tools *container.Invoker, opts ...RunnerOption) *Runner {
	r := &Runner{
		eng:       eng,
		transfers: transfers,
		tools:     tools,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.start = job.NewDefinition(JobStart, r.runStart)
	r.spawnSamples = job.NewDefinition(JobSpawnSamples, r.runSpawnSamples)
	r.download = job.NewDefinition(JobDownload, r.runDownload, job.WithMaxRetries(2))
	r.upload = job.NewDefinition(JobUpload, r.runUpload, job.WithMaxRetries(2))
	r.adtexCoverage = job.NewDefinition(JobAdtexCoverage, r.runAdtexCoverage)
	r.zygosityInputs = job.NewDefinition(JobZygosityInputs, r.runZygosityInputs)
	r.zygosityRun = job.NewDefinition(JobZygosityRun, r.runZygosity)
	r.muse = job.NewDefinition(JobMuse, r.runMuse)

	engine.Register(eng, r.start)
	engine.Register(eng, r.spawnSamples)
	engine.Register(eng, r.download)
	engine.Register(eng, r.upload)
	engine.Register(eng, r.adtexCoverage)
	engine.Register(eng, r.zygosityInputs)
	engine.Register(eng, r.zygosityRun)
	engine.Register(eng, r.muse)
	return r
}

// Submit validates cfg and submits a graph for p. The graph is named
// after the pipeline.
func (r *Runner) Submit(ctx context.Context, p Pipeline, cfg Config) (engine.GraphHandle, error) {
	cfg, err := cfg.normalize(p)
	if err != nil {
		return engine.GraphHandle{}, err
	}
	if err := r.setKey(cfg.MasterKey); err != nil {
		return engine.GraphHandle{}, err
	}

	spec, err := job.NewSpec(r.start, startPayload{Pipeline: p, Config: cfg})
	if err != nil {
		return engine.GraphHandle{}, err
	}
	h, err := r.eng.Submit(ctx, string(p), spec)
	if err != nil {
		return engine.GraphHandle{}, err
	}

	r.logger.Info("pipeline submitted",
		slog.String("pipeline", string(p)),
		slog.String("graph_id", h.ID.String()),
		slog.Int("samples", len(cfg.Samples)),
		slog.Bool("encrypted", cfg.Encrypted),
	)
	return h, nil
}

// Run submits a graph for p and blocks until it finishes.
func (r *Runner) Run(ctx context.Context, p Pipeline, cfg Config) (*engine.RunResult, error) {
	h, err := r.Submit(ctx, p, cfg)
	if err != nil {
		return nil, err
	}
	return r.eng.Run(ctx, h)
}

func (r *Runner) setKey(key []byte) error {
	if key == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.masterKey != nil && !bytes.Equal(r.masterKey, key) {
		return &jobgraph.ConfigError{Field: "ssec", Err: errKeyMismatch}
	}
	r.masterKey = key
	return nil
}

// key returns the loaded master key for encrypted transfers, or nil for
// plain ones.
func (r *Runner) key(encrypted bool) ([]byte, error) {
	if !encrypted {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.masterKey == nil {
		return nil, &jobgraph.ConfigError{Field: "ssec", Err: errKeyRequired}
	}
	return r.masterKey, nil
}

// fetch downloads a sample input into the working directory.
func (r *Runner) fetch(ctx context.Context, jc *job.Context, cfg Config, url, name string) error {
	key, err := r.key(cfg.Encrypted)
	if err != nil {
		return err
	}
	if err := r.transfers.Download(ctx, url, jc.Path(name), key); err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	return nil
}

// tool runs image against the working directory.
func (r *Runner) tool(ctx context.Context, jc *job.Context, cfg Config, image string, args []string) error {
	jc.Logger().Info("running tool", slog.String("image", image))
	_, err := r.tools.Invoke(ctx, image, args, jc.WorkDir(), container.Options{Sudo: cfg.Sudo})
	return err
}
