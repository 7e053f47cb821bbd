package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

const jobColumns = `
	id, graph_id, parent_id, relation, name, payload, state,
	children, follow_on, inputs, cores, memory, disk,
	max_retries, retries_remaining, attempts, last_error, error_kind,
	timeout, worker_id, started_at, completed_at, created_at, updated_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	return insertJob(ctx, s.pool, j)
}

func insertJob(ctx context.Context, q querier, j *job.Job) error {
	_, err := q.Exec(ctx, `
		INSERT INTO jobgraph_jobs (`+jobColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24
		)`,
		j.ID.String(), j.GraphID.String(), nullID(j.ParentID), string(j.Relation), j.Name, j.Payload, string(j.State),
		idStrings(j.Children), nullID(j.FollowOn), idStrings(j.Inputs), j.Resources.Cores, j.Resources.Memory, j.Resources.Disk,
		j.MaxRetries, j.RetriesRemaining, j.Attempts, j.LastError, string(j.ErrorKind),
		j.Timeout.Nanoseconds(), nullID(j.WorkerID), j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobgraph.ErrJobAlreadyExists
		}
		if isForeignKey(err) {
			return fmt.Errorf("jobgraph/postgres: create job %s: %w", j.ID, jobgraph.ErrJobNotFound)
		}
		return fmt.Errorf("jobgraph/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobgraph_jobs WHERE id = $1`,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobgraph.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobgraph/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	return updateJob(ctx, s.pool, j)
}

func updateJob(ctx context.Context, q querier, j *job.Job) error {
	tag, err := q.Exec(ctx, `
		UPDATE jobgraph_jobs SET
			state = $2, children = $3, follow_on = $4, inputs = $5,
			cores = $6, memory = $7, disk = $8,
			max_retries = $9, retries_remaining = $10, attempts = $11,
			last_error = $12, error_kind = $13, timeout = $14,
			worker_id = $15, started_at = $16, completed_at = $17,
			updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), string(j.State), idStrings(j.Children), nullID(j.FollowOn), idStrings(j.Inputs),
		j.Resources.Cores, j.Resources.Memory, j.Resources.Disk,
		j.MaxRetries, j.RetriesRemaining, j.Attempts,
		j.LastError, string(j.ErrorKind), j.Timeout.Nanoseconds(),
		nullID(j.WorkerID), j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("jobgraph/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobgraph.ErrJobNotFound
	}
	return nil
}

// ListJobs returns every job of a graph in creation order.
func (s *Store) ListJobs(ctx context.Context, graphID id.GraphID) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobgraph_jobs WHERE graph_id = $1 ORDER BY seq ASC`,
		graphID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CommitJob atomically updates j and inserts the jobs it spawned.
func (s *Store) CommitJob(ctx context.Context, j *job.Job, spawned []*job.Job) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
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
		return fmt.Errorf("jobgraph/postgres: commit job %s: %w", j.ID, err)
	}
	return nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		graphStr    string
		parentStr   *string
		relation    string
		stateStr    string
		children    []string
		followOnStr *string
		inputs      []string
		errorKind   string
		timeoutNs   int64
		workerStr   *string
	)
	err := row.Scan(
		&idStr, &graphStr, &parentStr, &relation, &j.Name, &j.Payload, &stateStr,
		&children, &followOnStr, &inputs, &j.Resources.Cores, &j.Resources.Memory, &j.Resources.Disk,
		&j.MaxRetries, &j.RetriesRemaining, &j.Attempts, &j.LastError, &errorKind,
		&timeoutNs, &workerStr, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Relation = job.Relation(relation)
	j.State = job.State(stateStr)
	j.ErrorKind = jobgraph.Kind(errorKind)
	j.Timeout = time.Duration(timeoutNs)

	if j.ID, err = id.ParseJobID(idStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse job id %q: %w", idStr, err)
	}
	if j.GraphID, err = id.ParseGraphID(graphStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse graph id %q: %w", graphStr, err)
	}
	if j.ParentID, err = parseNullID(parentStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse parent id: %w", err)
	}
	if j.FollowOn, err = parseNullID(followOnStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse follow-on id: %w", err)
	}
	if j.Children, err = parseIDs(children); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: children: %w", err)
	}
	if j.Inputs, err = parseIDs(inputs); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: inputs: %w", err)
	}
	if workerStr != nil && *workerStr != "" {
		if parsedWorker, workerErr := id.ParseWorkerID(*workerStr); workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobgraph/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
