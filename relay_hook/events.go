package relayhook

// Lifecycle event types. Each constant maps to one ext lifecycle hook and
// is the NATS subject the event is published on (optionally prefixed, see
// WithSubjectPrefix).
const (
	EventGraphSubmitted = "jobgraph.graph.submitted"
	EventGraphCompleted = "jobgraph.graph.completed"
	EventGraphFailed    = "jobgraph.graph.failed"
	EventJobSpawned     = "jobgraph.job.spawned"
	EventJobStarted     = "jobgraph.job.started"
	EventJobCompleted   = "jobgraph.job.completed"
	EventJobFailed      = "jobgraph.job.failed"
	EventJobRetrying    = "jobgraph.job.retrying"
	EventJobCancelled   = "jobgraph.job.cancelled"
	EventArtifactSealed = "jobgraph.artifact.sealed"
)

// AllEvents returns every event type this extension can publish.
func AllEvents() []string {
	return []string{
		EventGraphSubmitted,
		EventGraphCompleted,
		EventGraphFailed,
		EventJobSpawned,
		EventJobStarted,
		EventJobCompleted,
		EventJobFailed,
		EventJobRetrying,
		EventJobCancelled,
		EventArtifactSealed,
	}
}
