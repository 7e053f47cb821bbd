// Package audithook is a jobgraph extension that records an audit trail
// of graph, job and artifact lifecycle events.
//
// Every lifecycle hook emits a structured audit event through the
// [Recorder] interface. The extension assigns severity levels (info for
// normal operations, warning for retries and cancellations, critical for
// terminal failures) and metadata such as job name, attempt, elapsed time
// and the error kind of failures.
//
// [SlogRecorder] writes events to a *slog.Logger, which is what the CLI
// uses. Any other backend can be bridged with [RecorderFunc]:
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return sink.Write(ctx, evt)
//	}))
//
// # Filtering
//
// [WithActions] keeps only the named actions and [WithMinSeverity] drops
// events below a severity, so a long cohort run can keep just its
// failures:
//
//	audithook.New(recorder, audithook.WithMinSeverity(audithook.SeverityCritical))
package audithook
