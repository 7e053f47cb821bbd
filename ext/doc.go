// Package ext defines the extension system for jobgraph.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, publishing events or writing audit trails. Each
// lifecycle hook is a separate interface so extensions opt in only to the
// events they care about.
//
// # Implementing an Extension
//
//	type Progress struct{}
//
//	func (p *Progress) Name() string { return "progress" }
//
//	func (p *Progress) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    fmt.Printf("%s finished in %s\n", j.Name, elapsed)
//	    return nil
//	}
//
// # Graph Hooks
//
//   - [GraphSubmitted]: a graph and its root job were persisted
//   - [GraphCompleted]: every job succeeded
//   - [GraphFailed]: the graph finished failed or cancelled
//
// # Job Hooks
//
//   - [JobSpawned]: a child or follow-on was committed with its parent
//   - [JobStarted]: a worker began an attempt
//   - [JobCompleted]: the job succeeded
//   - [JobFailed]: the job failed with no retries remaining
//   - [JobRetrying]: the attempt failed and will be retried
//   - [JobCancelled]: the job will never run
//
// # Other Hooks
//
//   - [ArtifactSealed]: an artifact was sealed or updated
//   - [Shutdown]: the coordinator is stopping
//
// Hook errors are logged and never propagated; an extension cannot fail
// a job.
package ext
