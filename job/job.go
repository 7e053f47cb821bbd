package job

import (
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job exists but is not yet eligible to run:
	// its inputs are unsealed, or it is a follow-on whose owner's subtree
	// has not resolved.
	StatePending State = "pending"
	// StateRunnable means the job is eligible and waiting for a worker.
	StateRunnable State = "runnable"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateSucceeded means the job body returned without error.
	StateSucceeded State = "succeeded"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
	// StateCancelled means the job will never run.
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Relation describes how a job was attached to its parent.
type Relation string

const (
	// RelationRoot is the job submitted with the graph.
	RelationRoot Relation = "root"
	// RelationChild is a job spawned with AddChild. It is scheduled
	// independently of its siblings.
	RelationChild Relation = "child"
	// RelationFollowOn is a job spawned with AddFollowOn. It runs after
	// its parent and the parent's whole subtree have succeeded.
	RelationFollowOn Relation = "followon"
)

// Resources is an advisory admission request. Memory and Disk are bytes.
type Resources struct {
	Cores  int   `json:"cores"`
	Memory int64 `json:"memory"`
	Disk   int64 `json:"disk"`
}

// Job is a node of a job graph.
type Job struct {
	jobgraph.Entity

	ID               id.JobID        `json:"id"`
	GraphID          id.GraphID      `json:"graph_id"`
	ParentID         id.JobID        `json:"parent_id,omitempty"`
	Relation         Relation        `json:"relation"`
	Name             string          `json:"name"`
	Payload          []byte          `json:"payload"`
	State            State           `json:"state"`
	Children         []id.JobID      `json:"children,omitempty"`
	FollowOn         id.JobID        `json:"follow_on,omitempty"`
	Inputs           []id.ArtifactID `json:"inputs,omitempty"`
	Resources        Resources       `json:"resources"`
	MaxRetries       int             `json:"max_retries"`
	RetriesRemaining int             `json:"retries_remaining"`
	Attempts         int             `json:"attempts"`
	LastError        string          `json:"last_error,omitempty"`
	ErrorKind        jobgraph.Kind   `json:"error_kind,omitempty"`
	Timeout          time.Duration   `json:"timeout,omitempty"`
	WorkerID         id.WorkerID     `json:"worker_id,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Payload = append([]byte(nil), j.Payload...)
	cp.Children = append([]id.JobID(nil), j.Children...)
	cp.Inputs = append([]id.ArtifactID(nil), j.Inputs...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
