package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	return s.insertJob(ctx, j)
}

func (s *Store) insertJob(ctx context.Context, j *job.Job) error {
	seq, err := s.nextSeq(ctx, colJobs)
	if err != nil {
		return err
	}
	m := toJobModel(j)
	m.Seq = seq
	if _, err := s.db.Collection(colJobs).InsertOne(ctx, m); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return jobgraph.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobgraph/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobgraph.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobgraph/mongo: get job: %w", err)
	}
	j, err := fromJobModel(&m)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	return s.updateJob(ctx, j)
}

// updateJob rewrites the mutable fields. Identity, graph membership and
// creation order never change.
func (s *Store) updateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"state":             m.State,
			"children":          m.Children,
			"follow_on":         m.FollowOn,
			"inputs":            m.Inputs,
			"cores":             m.Cores,
			"memory":            m.Memory,
			"disk":              m.Disk,
			"max_retries":       m.MaxRetries,
			"retries_remaining": m.RetriesRemaining,
			"attempts":          m.Attempts,
			"last_error":        m.LastError,
			"error_kind":        m.ErrorKind,
			"timeout":           m.Timeout,
			"worker_id":         m.WorkerID,
			"started_at":        m.StartedAt,
			"completed_at":      m.CompletedAt,
			"updated_at":        time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("jobgraph/mongo: update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return jobgraph.ErrJobNotFound
	}
	return nil
}

// ListJobs returns every job of a graph in creation order.
func (s *Store) ListJobs(ctx context.Context, graphID id.GraphID) ([]*job.Job, error) {
	cur, err := s.db.Collection(colJobs).Find(ctx,
		bson.M{"graph_id": graphID.String()},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: list jobs: %w", err)
	}

	var models []jobModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: decode jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("jobgraph/mongo: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CommitJob updates j and inserts the jobs it spawned in one transaction.
func (s *Store) CommitJob(ctx context.Context, j *job.Job, spawned []*job.Job) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("jobgraph/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if err := s.updateJob(ctx, j); err != nil {
			return nil, err
		}
		for _, c := range spawned {
			if err := s.insertJob(ctx, c); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("jobgraph/mongo: commit job %s: %w", j.ID, err)
	}
	return nil
}
