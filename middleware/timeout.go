package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobgraph/job"
)

// Timeout bounds an attempt's wall-clock time. A job's own Timeout wins;
// otherwise fallback applies. With both zero the attempt is unbounded.
//
// A handler that returns after its deadline passed gets its error
// annotated with the limit, so logs show which bound fired.
func Timeout(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		limit := j.Timeout
		if limit <= 0 {
			limit = fallback
		}
		if limit <= 0 {
			return next(ctx)
		}

		logger.Debug("job timeout set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", limit),
		)
		tctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		err := next(tctx)
		if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("job %s exceeded %s: %w", j.Name, limit, err)
		}
		return err
	}
}
