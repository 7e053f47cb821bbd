// Package rclone stores artifact bytes on any rclone remote (S3, GCS,
// SFTP, ...), for worker fleets that do not share a filesystem.
package rclone

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/process"
)

var _ artifact.Backend = (*Backend)(nil)

// Config identifies the remote location.
type Config struct {
	RemoteName string `koanf:"remote"`    // e.g. "s3"
	BasePath   string `koanf:"base_path"` // e.g. "bucket/jobgraph"
	Binary     string `koanf:"binary"`    // default: "rclone"
}

// Backend shells out to the rclone CLI.
type Backend struct {
	cfg    Config
	runner process.Runner
	logger *slog.Logger
}

// New returns an rclone backend that executes through runner.
func New(cfg Config, runner process.Runner, logger *slog.Logger) *Backend {
	if cfg.Binary == "" {
		cfg.Binary = "rclone"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, runner: runner, logger: logger}
}

// Check verifies the binary and the remote are usable.
func (b *Backend) Check(ctx context.Context) error {
	if _, err := b.runner.LookPath(b.cfg.Binary); err != nil {
		return err
	}
	if _, err := b.run(ctx, "lsd", b.remotePath("")); err != nil {
		return fmt.Errorf("rclone remote %q not accessible: %w", b.cfg.RemoteName, err)
	}
	return nil
}

// Put uploads localPath to key.
func (b *Backend) Put(ctx context.Context, key, localPath string) error {
	start := time.Now()
	if _, err := b.run(ctx, "copyto", localPath, b.remotePath(key)); err != nil {
		return fmt.Errorf("rclone copyto: %w", err)
	}
	b.logger.Debug("rclone upload completed",
		slog.String("key", key),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Fetch downloads key to localPath.
func (b *Backend) Fetch(ctx context.Context, key, localPath string) error {
	if _, err := b.run(ctx, "copyto", b.remotePath(key), localPath); err != nil {
		return fmt.Errorf("rclone copyto: %w", err)
	}
	return nil
}

// lsjsonEntry is one entry of rclone lsjson output.
type lsjsonEntry struct {
	Path  string `json:"Path"`
	Name  string `json:"Name"`
	Size  int64  `json:"Size"`
	IsDir bool   `json:"IsDir"`
}

// Exists lists key and reports whether a file came back.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	out, err := b.run(ctx, "lsjson", b.remotePath(key))
	if err != nil {
		// rclone exits 3 for "directory not found" and 4 for "file not found".
		if code := process.ExitCode(err); code == 3 || code == 4 {
			return false, nil
		}
		return false, fmt.Errorf("rclone lsjson: %w", err)
	}

	var entries []lsjsonEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return false, fmt.Errorf("parse rclone lsjson output: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.run(ctx, "deletefile", b.remotePath(key)); err != nil {
		if code := process.ExitCode(err); code == 3 || code == 4 {
			return nil
		}
		return fmt.Errorf("rclone deletefile: %w", err)
	}
	return nil
}

func (b *Backend) remotePath(key string) string {
	base := b.cfg.RemoteName + ":" + strings.TrimSuffix(b.cfg.BasePath, "/")
	if key != "" {
		base += "/" + key
	}
	return base
}

func (b *Backend) run(ctx context.Context, args ...string) ([]byte, error) {
	res, err := b.runner.Run(ctx, process.Command{Name: b.cfg.Binary, Args: args})
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}
