package jobgraph

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the scheduler's retry decision.
type Kind string

const (
	// KindUnknown is any error outside the taxonomy. It is retried.
	KindUnknown Kind = ""
	// KindConfig is a fatal configuration problem. Never retried; aborts the run.
	KindConfig Kind = "config"
	// KindEnvironment is a missing external executable. Never retried.
	KindEnvironment Kind = "environment"
	// KindTransfer is a network transfer that exhausted its retry budget.
	KindTransfer Kind = "transfer"
	// KindTool is a wrapped tool that exited non-zero.
	KindTool Kind = "tool"
)

// ConfigError reports invalid configuration such as a master key of the
// wrong length or a manifest row with missing fields.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// EnvironmentError reports that a required external executable is not
// installed on the host.
type EnvironmentError struct {
	Executable string
	Err        error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment error: %q not available: %v", e.Executable, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// TransferError reports a transfer that failed after exhausting its retry
// budget, or whose result failed verification.
type TransferError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer error: %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ToolError reports a wrapped tool that exited with a non-zero status.
// Output holds the captured stream output of the invocation.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error: %s exited with status %d: %v", e.Tool, e.ExitCode, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// KindOf returns the taxonomy kind of err, searching the wrap chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		cfgErr  *ConfigError
		envErr  *EnvironmentError
		xferErr *TransferError
		toolErr *ToolError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &envErr):
		return KindEnvironment
	case errors.As(err, &xferErr):
		return KindTransfer
	case errors.As(err, &toolErr):
		return KindTool
	default:
		return KindUnknown
	}
}

// Retryable reports whether a job that failed with err may be re-run.
// Configuration and environment errors are permanent.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindEnvironment:
		return false
	default:
		return true
	}
}
