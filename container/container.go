// Package container runs bioinformatics tools packaged as container
// images. The job working directory is bound at MountPoint, and tools
// address every file relative to it.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/process"
)

// MountPoint is where the working directory appears inside the container.
const MountPoint = "/data"

// Path returns the in-container path of a file in the working directory.
func Path(name string) string {
	return path.Join(MountPoint, filepath.ToSlash(name))
}

// Options tune one invocation.
type Options struct {
	Privileged bool
	Env        map[string]string

	// Sudo prefixes the runtime command with sudo.
	Sudo bool

	// JavaOpts is forwarded as the JAVA_OPTS environment variable.
	JavaOpts string

	// Stdout receives the tool's standard output, for tools that write
	// their result to stdout.
	Stdout io.Writer
}

// Invoker is stateless per invocation.
type Invoker struct {
	runner  process.Runner
	runtime string
	logger  *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithRuntime overrides the container runtime executable (default docker).
func WithRuntime(name string) InvokerOption {
	return func(i *Invoker) { i.runtime = name }
}

// WithLogger sets the invoker logger.
func WithLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = l }
}

// NewInvoker returns an invoker executing through runner.
func NewInvoker(runner process.Runner, opts ...InvokerOption) *Invoker {
	i := &Invoker{runner: runner, runtime: "docker", logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Command builds the runtime command line without running it.
func (i *Invoker) Command(image string, args []string, workDir string, opts Options) (process.Command, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return process.Command{}, err
	}

	argv := []string{"run", "--rm", "-v", abs + ":" + MountPoint}
	if opts.Privileged {
		argv = append(argv, "--privileged")
	}
	env := make([]string, 0, len(opts.Env)+1)
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	if opts.JavaOpts != "" {
		env = append(env, "JAVA_OPTS="+opts.JavaOpts)
	}
	for _, kv := range env {
		argv = append(argv, "-e", kv)
	}
	argv = append(argv, image)
	argv = append(argv, args...)

	cmd := process.Command{Name: i.runtime, Args: argv, Dir: abs, Stdout: opts.Stdout}
	if opts.Sudo {
		cmd.Name = "sudo"
		cmd.Args = append([]string{i.runtime}, argv...)
	}
	return cmd, nil
}

// Invoke runs image with args and returns the exit status. A non-zero
// exit is a *jobgraph.ToolError carrying the captured output; a missing
// runtime is a *jobgraph.EnvironmentError.
func (i *Invoker) Invoke(ctx context.Context, image string, args []string, workDir string, opts Options) (int, error) {
	// Under sudo only sudo itself is resolved by the runner, and a missing
	// runtime would surface as sudo's exit status.
	if opts.Sudo {
		if _, err := i.runner.LookPath(i.runtime); err != nil {
			return -1, err
		}
	}
	cmd, err := i.Command(image, args, workDir, opts)
	if err != nil {
		return -1, err
	}

	start := time.Now()
	res, err := i.runner.Run(ctx, cmd)
	if err == nil {
		i.logger.Info("tool completed",
			slog.String("image", image),
			slog.Duration("elapsed", time.Since(start)),
		)
		return 0, nil
	}

	if jobgraph.KindOf(err) == jobgraph.KindEnvironment {
		return -1, err
	}

	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, &jobgraph.ToolError{
			Tool:     image,
			ExitCode: exitErr.Code,
			Output:   output(res),
			Err:      err,
		}
	}
	return -1, fmt.Errorf("container %s: %w", image, err)
}

func output(res *process.Result) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	b.Write(res.Stdout)
	if len(res.Stdout) > 0 && len(res.Stderr) > 0 {
		b.WriteByte('\n')
	}
	b.Write(res.Stderr)
	return b.String()
}
