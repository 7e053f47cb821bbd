package job

import (
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
)

// GraphState represents the lifecycle state of a submitted graph.
type GraphState string

const (
	// GraphRunning means at least one node of the graph is not terminal.
	GraphRunning GraphState = "running"
	// GraphSucceeded means every reachable node succeeded.
	GraphSucceeded GraphState = "succeeded"
	// GraphFailed means at least one node failed permanently.
	GraphFailed GraphState = "failed"
	// GraphCancelled means the graph was cancelled before it resolved.
	GraphCancelled GraphState = "cancelled"
)

// Graph is the dynamic tree of jobs rooted at one submitted root job.
type Graph struct {
	jobgraph.Entity

	ID          id.GraphID `json:"id"`
	Name        string     `json:"name"`
	RootID      id.JobID   `json:"root_id"`
	State       GraphState `json:"state"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
