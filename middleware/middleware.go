// Package middleware provides composable middleware around job attempts.
// Middleware wraps handler calls synchronously and can modify execution
// (recover from panics, bound wall-clock time, log, trace, measure).
package middleware

import (
	"context"

	"github.com/xraph/jobgraph/job"
)

// Handler is the terminal function that runs one job attempt.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// context, the job being attempted and the next handler. Middleware must
// call next to continue the chain unless it short-circuits on error.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes middleware into one. The first middleware in the list is
// the outermost wrapper:
//
//	Chain(logging, recover, timeout) → logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw, inner := mws[i], h
			h = func(ctx context.Context) error {
				return mw(ctx, j, inner)
			}
		}
		return h(ctx)
	}
}

// Default is the chain the engine installs when none is configured.
func Default(deps Deps) []Middleware {
	return []Middleware{
		Logging(deps.logger()),
		Recover(deps.logger()),
		Timeout(deps.logger(), deps.ToolTimeout),
	}
}
