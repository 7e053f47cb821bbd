package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/job"
)

// Logging logs attempt start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []any{
			slog.String("job_name", j.Name),
			slog.String("job_id", j.ID.String()),
			slog.String("graph_id", j.GraphID.String()),
			slog.Int("attempt", j.Attempts),
		}
		logger.Info("job started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Error("job failed", append(attrs,
				slog.String("error_kind", string(jobgraph.KindOf(err))),
				slog.String("error", err.Error()),
			)...)
		} else {
			logger.Info("job completed", attrs...)
		}
		return err
	}
}
