// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/process"
)

// HandlerFunc scripts the outcome of one command. Returning a Result with
// a non-zero ExitCode and a nil error produces a *process.ExitError.
type HandlerFunc func(ctx context.Context, cmd process.Command) (*process.Result, error)

// Runner records every command and answers with a HandlerFunc.
type Runner struct {
	mu      sync.Mutex
	handler HandlerFunc
	missing map[string]bool
	calls   []process.Command
}

var _ process.Runner = (*Runner)(nil)

// New returns a runner answering with h. A nil h makes every command
// succeed with empty output.
func New(h HandlerFunc) *Runner {
	return &Runner{handler: h, missing: make(map[string]bool)}
}

// Missing marks executables as absent from PATH.
func (r *Runner) Missing(names ...string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.missing[n] = true
	}
	return r
}

// LookPath fails for executables marked missing.
func (r *Runner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missing[name] {
		return "", &jobgraph.EnvironmentError{Executable: name, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + name, nil
}

// Run records cmd and dispatches to the handler.
func (r *Runner) Run(ctx context.Context, cmd process.Command) (*process.Result, error) {
	cp := cmd
	cp.Args = append([]string(nil), cmd.Args...)
	cp.Env = append([]string(nil), cmd.Env...)

	r.mu.Lock()
	r.calls = append(r.calls, cp)
	missing := r.missing[cmd.Name]
	h := r.handler
	r.mu.Unlock()

	if missing {
		return nil, &jobgraph.EnvironmentError{Executable: cmd.Name, Err: exec.ErrNotFound}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return &process.Result{}, nil
	}

	res, err := h(ctx, cmd)
	if res == nil {
		res = &process.Result{}
	}
	if err == nil && res.ExitCode != 0 {
		err = &process.ExitError{
			Name:   cmd.Name,
			Code:   res.ExitCode,
			Stderr: strings.TrimSpace(string(res.Stderr)),
		}
	}
	return res, err
}

// Calls returns a copy of every recorded command.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Command(nil), r.calls...)
}

// CallsTo returns the recorded commands for one executable.
func (r *Runner) CallsTo(name string) []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []process.Command
	for _, c := range r.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ErrScripted is a convenience failure for handlers.
var ErrScripted = errors.New("processtest: scripted failure")

// Arg returns the argument following flag in args, or "".
func Arg(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
