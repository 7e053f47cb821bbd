package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/jobgraph/job"
)

// Recover turns a panicking attempt into an error and logs the stack.
// The error is unclassified, so the attempt counts against the job's
// retries like any other failure. A panic value that is itself an error
// stays reachable through errors.Is and errors.As.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("job handler panicked",
				slog.String("job_id", j.ID.String()),
				slog.String("graph_id", j.GraphID.String()),
				slog.String("job_name", j.Name),
				slog.Int("attempt", j.Attempts),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			if cause, ok := r.(error); ok {
				err = fmt.Errorf("panic in job %s: %w", j.Name, cause)
				return
			}
			err = fmt.Errorf("panic in job %s: %v", j.Name, r)
		}()
		return next(ctx)
	}
}
