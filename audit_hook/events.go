package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionGraphSubmitted = "graph.submitted"
	ActionGraphCompleted = "graph.completed"
	ActionGraphFailed    = "graph.failed"
	ActionJobSpawned     = "job.spawned"
	ActionJobStarted     = "job.started"
	ActionJobCompleted   = "job.completed"
	ActionJobFailed      = "job.failed"
	ActionJobRetrying    = "job.retrying"
	ActionJobCancelled   = "job.cancelled"
	ActionArtifactSealed = "artifact.sealed"
)

// Audit event categories group related actions.
const (
	CategoryGraph    = "jobgraph.graph"
	CategoryJob      = "jobgraph.job"
	CategoryArtifact = "jobgraph.artifact"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceGraph    = "graph"
	ResourceJob      = "job"
	ResourceArtifact = "artifact"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionGraphSubmitted,
		ActionGraphCompleted,
		ActionGraphFailed,
		ActionJobSpawned,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobRetrying,
		ActionJobCancelled,
		ActionArtifactSealed,
	}
}
