// Package middleware wraps job attempts with cross-cutting behavior.
//
// A [Middleware] receives the context, the job and the next [Handler]:
//
//	func Audit(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	    err := next(ctx)
//	    record(j.Name, err)
//	    return err
//	}
//
// Built-ins:
//
//   - [Logging]: attempt start and completion with job, graph and attempt
//   - [Recover]: panics become retryable errors
//   - [Timeout]: optional wall-clock bound per attempt
//   - [Tracing]: one OpenTelemetry span per attempt
//   - [Metrics]: OpenTelemetry duration histogram and execution counter
//
// [Chain] composes them; the first listed is outermost.
package middleware
