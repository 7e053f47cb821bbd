// Package process runs external executables. Every tool the pipelines
// shell out to (curl, s3am, docker, rclone) goes through a [Runner] so
// tests can script tool behavior without the binaries present.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/xraph/jobgraph"
)

// Command describes one executable invocation.
type Command struct {
	Name string
	Args []string

	// Env holds KEY=VALUE pairs appended to the current environment.
	Env []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Stdout, when set, receives standard output instead of Result.Stdout.
	Stdout io.Writer

	// Secret keeps the arguments out of logs.
	Secret bool
}

// String renders the command line for logs.
func (c Command) String() string {
	if c.Secret {
		return c.Name + " [redacted]"
	}
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes commands.
type Runner interface {
	// Run executes cmd and blocks until it exits or ctx is cancelled.
	// A missing executable yields a *jobgraph.EnvironmentError; a non-zero
	// exit yields an *ExitError alongside the Result.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// LookPath resolves an executable name.
	LookPath(name string) (string, error)
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d (stderr: %s)", e.Name, e.Code, e.Stderr)
}

// ExitCode extracts the exit status from err, or -1 if err does not carry
// one.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

// Compile-time check.
var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a runner that logs to logger.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Logger: logger}
}

// LookPath resolves name on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &jobgraph.EnvironmentError{Executable: name, Err: err}
	}
	return path, nil
}

// Run executes cmd.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	path, err := r.LookPath(cmd.Name)
	if err != nil {
		return nil, err
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	} else {
		c.Stdout = &stdout
	}
	c.Stderr = &stderr

	logger := r.logger()
	logger.Debug("running command", slog.String("cmd", cmd.String()))
	start := time.Now()
	runErr := c.Run()
	elapsed := time.Since(start)

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if runErr == nil {
		logger.Debug("command completed",
			slog.String("cmd", cmd.Name),
			slog.Duration("elapsed", elapsed),
		)
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			logger.Warn("command stderr",
				slog.String("cmd", cmd.Name),
				slog.String("stderr", stderrStr),
			)
		}
		return res, &ExitError{Name: cmd.Name, Code: res.ExitCode, Stderr: stderrStr}
	}
	return res, fmt.Errorf("%s: %w", cmd.Name, runErr)
}

func (r *ExecRunner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
