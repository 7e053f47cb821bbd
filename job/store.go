package job

import (
	"context"

	"github.com/xraph/jobgraph/id"
)

// Store defines the persistence contract for graphs and jobs.
type Store interface {
	// CreateGraph persists a new graph.
	CreateGraph(ctx context.Context, g *Graph) error

	// GetGraph retrieves a graph by ID.
	GetGraph(ctx context.Context, graphID id.GraphID) (*Graph, error)

	// UpdateGraph persists changes to an existing graph.
	UpdateGraph(ctx context.Context, g *Graph) error

	// ListGraphs returns graphs in the given state, oldest first.
	ListGraphs(ctx context.Context, state GraphState) ([]*Graph, error)

	// CreateJob persists a new job. A job ID is created exactly once;
	// a second create returns jobgraph.ErrJobAlreadyExists.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// ListJobs returns every job of a graph in creation order.
	ListJobs(ctx context.Context, graphID id.GraphID) ([]*Job, error)

	// CommitJob atomically persists j and creates the jobs it spawned.
	// Either all of them are recorded or none is.
	CommitJob(ctx context.Context, j *Job, spawned []*Job) error
}
