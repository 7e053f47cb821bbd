package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	return insertJob(ctx, s.db, j)
}

func insertJob(ctx context.Context, db bun.IDB, j *job.Job) error {
	_, err := db.NewInsert().Model(toJobModel(j)).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return jobgraph.ErrJobAlreadyExists
		}
		if isForeignKey(err) {
			return fmt.Errorf("jobgraph/bun: create job %s: %w", j.ID, jobgraph.ErrJobNotFound)
		}
		return fmt.Errorf("jobgraph/bun: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobgraph.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobgraph/bun: get job: %w", err)
	}
	j, err := fromJobModel(m)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/bun: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	return updateJob(ctx, s.db, j)
}

// updateJob rewrites the mutable columns. Identity, graph membership and
// creation order never change.
func updateJob(ctx context.Context, db bun.IDB, j *job.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = time.Now().UTC()
	res, err := db.NewUpdate().Model(m).
		Column(
			"state", "children", "follow_on", "inputs",
			"cores", "memory", "disk",
			"max_retries", "retries_remaining", "attempts",
			"last_error", "error_kind", "timeout",
			"worker_id", "started_at", "completed_at", "updated_at",
		).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobgraph/bun: update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobgraph.ErrJobNotFound
	}
	return nil
}

// ListJobs returns every job of a graph in creation order.
func (s *Store) ListJobs(ctx context.Context, graphID id.GraphID) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("graph_id = ?", graphID.String()).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/bun: list jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("jobgraph/bun: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CommitJob atomically updates j and inserts the jobs it spawned.
func (s *Store) CommitJob(ctx context.Context, j *job.Job, spawned []*job.Job) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := updateJob(ctx, tx, j); err != nil {
			return err
		}
		for _, c := range spawned {
			if err := insertJob(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("jobgraph/bun: commit job %s: %w", j.ID, err)
	}
	return nil
}
