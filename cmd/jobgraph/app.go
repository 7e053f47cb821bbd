package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/engine"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/pipeline"
	"github.com/xraph/jobgraph/store"
	"github.com/xraph/jobgraph/transfer"
)

var version = "dev"

var errRunFailed = errors.New("run failed")

// App returns the root command.
func App() *cli.Command {
	return &cli.Command{
		Name:    "jobgraph",
		Version: version,
		Usage:   "Run containerized genomics pipelines as resumable job graphs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("JOBGRAPH_CONFIG_PATH"),
			},
			&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "log-format", Usage: "Log format (pretty, text, json)"},
			&cli.StringFlag{Name: "store", Usage: "Job store driver (memory, postgres, bun, mongo, redis)"},
			&cli.StringFlag{Name: "store-url", Usage: "Job store connection URL"},
			&cli.StringFlag{Name: "work-dir", Usage: "Root of per-job working directories"},
			&cli.StringFlag{Name: "artifact-dir", Usage: "Local artifact storage directory"},
			&cli.StringFlag{Name: "rclone-remote", Usage: "Store artifacts on this rclone remote instead of locally"},
			&cli.IntFlag{Name: "concurrency", Usage: "Number of worker goroutines"},
			&cli.StringFlag{Name: "nats-url", Usage: "Publish lifecycle events to this NATS server"},
		},
		Commands: []*cli.Command{
			pipelineCmd(pipeline.AdtexCoverage, "Call copy-number changes from coverage files with ADTEx"),
			pipelineCmd(pipeline.AdtexZygosity, "Run ADTEx with ploidy estimation from B-allele frequencies"),
			pipelineCmd(pipeline.MuSE, "Call somatic point mutations with MuSE"),
			resumeCmd(),
			migrateCmd(),
		},
	}
}

// loadSettings reads the settings and applies global flag overrides.
func loadSettings(cmd *cli.Command) (*Settings, *slog.Logger, error) {
	s, err := LoadSettings(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	overrides := map[string]*string{
		"log-level":     &s.Log.Level,
		"log-format":    &s.Log.Format,
		"store":         &s.Store.Driver,
		"store-url":     &s.Store.URL,
		"work-dir":      &s.Work.Dir,
		"artifact-dir":  &s.Artifacts.Dir,
		"rclone-remote": &s.Artifacts.Rclone.RemoteName,
		"nats-url":      &s.NATS.URL,
	}
	for flag, dst := range overrides {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}
	if cmd.IsSet("concurrency") {
		s.Work.Concurrency = int(cmd.Int("concurrency"))
	}
	if cmd.IsSet("tool-timeout") {
		s.Work.ToolTimeout = cmd.Duration("tool-timeout")
	}

	logger, err := newLogger(os.Stderr, s.Log.Level, s.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return s, logger, nil
}

func loadKey(cmd *cli.Command) ([]byte, error) {
	path := cmd.String("ssec")
	if path == "" {
		return nil, nil
	}
	return transfer.LoadMasterKey(path)
}

func pipelineCmd(p pipeline.Pipeline, usage string) *cli.Command {
	return &cli.Command{
		Name:  string(p),
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "manifest", Aliases: []string{"c"}, Usage: "Sample manifest: uuid,url,url[,url] per line", Required: true},
			&cli.StringFlag{Name: "ssec", Aliases: []string{"s"}, Usage: "Path to the 32-byte SSE-C master key"},
			&cli.StringFlag{Name: "white", Aliases: []string{"w"}, Usage: "Exome target whitelist (bed)"},
			&cli.StringFlag{Name: "ref", Aliases: []string{"r"}, Usage: "Reference genome fasta"},
			&cli.StringFlag{Name: "fai", Aliases: []string{"f"}, Usage: "Reference genome fasta index"},
			&cli.StringFlag{Name: "dbsnp", Aliases: []string{"d"}, Usage: "dbSNP vcf"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Directory receiving a copy of every result"},
			&cli.StringFlag{Name: "s3-dir", Aliases: []string{"3"}, Usage: "Upload results to bucket/prefix"},
			&cli.BoolFlag{Name: "sudo", Aliases: []string{"u"}, Usage: "Run containers through sudo"},
			&cli.IntFlag{Name: "cores", Usage: "Cores requested by each tool job (default: all)"},
			&cli.DurationFlag{Name: "tool-timeout", Usage: "Hard limit for one tool job attempt (default: unbounded)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			samples, err := pipeline.ReadManifest(cmd.String("manifest"))
			if err != nil {
				return err
			}
			key, err := loadKey(cmd)
			if err != nil {
				return err
			}

			cfg := pipeline.Config{
				Manifest:       cmd.String("manifest"),
				Samples:        samples,
				MasterKey:      key,
				OutputDir:      cmd.String("out"),
				Destination:    cmd.String("s3-dir"),
				Sudo:           cmd.Bool("sudo"),
				Cores:          int(cmd.Int("cores")),
				Whitelist:      cmd.String("white"),
				Reference:      cmd.String("ref"),
				ReferenceIndex: cmd.String("fai"),
				DBSNP:          cmd.String("dbsnp"),
				ToolTimeout:    s.Work.ToolTimeout,
			}

			return withApp(ctx, s, logger, key, func(ctx context.Context, a *app) error {
				h, err := a.runner.Submit(ctx, p, cfg)
				if err != nil {
					return err
				}
				res, err := a.engine.Run(ctx, h)
				if err != nil {
					return interrupted(logger, h, err)
				}
				return report(os.Stdout, res)
			})
		},
	}
}

func resumeCmd() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Continue interrupted graphs from the job store",
		ArgsUsage: "[graph-id...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ssec", Aliases: []string{"s"}, Usage: "Path to the 32-byte SSE-C master key"},
			&cli.DurationFlag{Name: "tool-timeout", Usage: "Hard limit for one tool job attempt (default: unbounded)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if !store.Driver(s.Store.Driver).Durable() {
				return &jobgraph.ConfigError{Field: "store.driver", Err: errResumeMemory}
			}
			key, err := loadKey(cmd)
			if err != nil {
				return err
			}

			var ids []id.GraphID
			for _, arg := range cmd.Args().Slice() {
				gid, err := id.ParseGraphID(arg)
				if err != nil {
					return fmt.Errorf("graph id %q: %w", arg, err)
				}
				ids = append(ids, gid)
			}

			return withApp(ctx, s, logger, key, func(ctx context.Context, a *app) error {
				var handles []engine.GraphHandle
				if len(ids) == 0 {
					handles, err = a.engine.ResumeAll(ctx)
					if err != nil {
						return err
					}
				}
				for _, gid := range ids {
					if err := a.engine.Resume(ctx, gid); err != nil {
						return err
					}
					handles = append(handles, engine.GraphHandle{ID: gid})
				}
				if len(handles) == 0 {
					logger.Info("no running graphs to resume")
					return nil
				}

				results, err := a.engine.RunAll(ctx, handles...)
				if err != nil {
					return err
				}
				var failed error
				for _, res := range results {
					if err := report(os.Stdout, res); err != nil {
						failed = err
					}
				}
				return failed
			})
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply job store schema migrations",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			st, closeClient, err := openStore(ctx, s.Store, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = st.Close()
				if closeClient != nil {
					_ = closeClient()
				}
			}()
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("migrations applied", slog.String("driver", s.Store.Driver))
			return nil
		},
	}
}

// withApp builds and starts the wiring, runs fn until it returns or the
// process is interrupted, and shuts down. Running graphs are left in the
// store so that resume can continue them.
func withApp(ctx context.Context, s *Settings, logger *slog.Logger, key []byte, fn func(context.Context, *app) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, s, logger, key)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		a.close()
		return err
	}
	defer func() {
		timeout := a.engine.Coordinator().Config().ShutdownTimeout
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.shutdown(sctx)
	}()

	return fn(ctx, a)
}

func interrupted(logger *slog.Logger, h engine.GraphHandle, err error) error {
	if errors.Is(err, context.Canceled) {
		logger.Warn("interrupted; continue with resume",
			slog.String("graph_id", h.ID.String()),
		)
	}
	return err
}

// report prints a result and the error of every failed job. It returns
// errRunFailed unless the graph succeeded.
func report(w io.Writer, res *engine.RunResult) error {
	fmt.Fprintln(w, res.String())
	for _, f := range res.Failed {
		kind := string(f.Kind)
		if kind == "" {
			kind = "error"
		}
		fmt.Fprintf(w, "  FAILED %s %s [%s]: %v\n", f.Name, f.JobID, kind, f.Err)
	}
	if res.Err() != nil {
		return fmt.Errorf("graph %s: %w", res.GraphID, errRunFailed)
	}
	return nil
}

// exitCode maps an error from App().Run to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
