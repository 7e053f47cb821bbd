package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// commitScript updates KEYS[1] and creates the spawned jobs atomically.
//
//	KEYS[1]    committed job key
//	KEYS[2]    graph job list
//	KEYS[3..]  spawned job keys
//	ARGV[1]    committed job JSON
//	ARGV[2..n+1]     spawned job JSON
//	ARGV[n+2..2n+1]  spawned job IDs
var commitScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOTFOUND')
end
local n = #KEYS - 2
for i = 1, n do
	if redis.call('EXISTS', KEYS[i + 2]) == 1 then
		return redis.error_reply('EXISTS')
	end
end
redis.call('SET', KEYS[1], ARGV[1])
for i = 1, n do
	redis.call('SET', KEYS[i + 2], ARGV[i + 1])
	redis.call('RPUSH', KEYS[2], ARGV[n + i + 1])
end
return n
`)

// CreateJob stores a new job and appends it to its graph's job list.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("jobgraph/redis: marshal job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.keys.job(jID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("jobgraph/redis: create job: %w", err)
	}
	if !ok {
		return jobgraph.ErrJobAlreadyExists
	}
	if err := s.client.RPush(ctx, s.keys.graphJobs(j.GraphID.String()), jID).Err(); err != nil {
		return fmt.Errorf("jobgraph/redis: index job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJob(ctx, jobID.String())
}

func (s *Store) getJob(ctx context.Context, jID string) (*job.Job, error) {
	data, err := s.client.Get(ctx, s.keys.job(jID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, jobgraph.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobgraph/redis: get job: %w", err)
	}
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("jobgraph/redis: unmarshal job: %w", err)
	}
	return &j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("jobgraph/redis: marshal job: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.keys.job(j.ID.String()), data, 0).Result()
	if err != nil {
		return fmt.Errorf("jobgraph/redis: update job: %w", err)
	}
	if !ok {
		return jobgraph.ErrJobNotFound
	}
	return nil
}

// ListJobs returns every job of a graph in creation order.
func (s *Store) ListJobs(ctx context.Context, graphID id.GraphID) ([]*job.Job, error) {
	ids, err := s.client.LRange(ctx, s.keys.graphJobs(graphID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobgraph/redis: list jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = s.keys.job(jID)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("jobgraph/redis: load jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			s.logger.Warn("listed job missing", slog.String("job_id", ids[i]))
			continue
		}
		var j job.Job
		if err := json.Unmarshal([]byte(str), &j); err != nil {
			return nil, fmt.Errorf("jobgraph/redis: unmarshal job %s: %w", ids[i], err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, nil
}

// CommitJob atomically updates j and creates the jobs it spawned.
func (s *Store) CommitJob(ctx context.Context, j *job.Job, spawned []*job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("jobgraph/redis: marshal job: %w", err)
	}

	keys := make([]string, 0, len(spawned)+2)
	keys = append(keys, s.keys.job(j.ID.String()), s.keys.graphJobs(j.GraphID.String()))
	args := make([]any, 0, 2*len(spawned)+1)
	args = append(args, data)
	for _, c := range spawned {
		cData, mErr := json.Marshal(c)
		if mErr != nil {
			return fmt.Errorf("jobgraph/redis: marshal job: %w", mErr)
		}
		keys = append(keys, s.keys.job(c.ID.String()))
		args = append(args, cData)
	}
	for _, c := range spawned {
		args = append(args, c.ID.String())
	}

	if err := commitScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		switch {
		case strings.Contains(err.Error(), "NOTFOUND"):
			return jobgraph.ErrJobNotFound
		case strings.Contains(err.Error(), "EXISTS"):
			return jobgraph.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobgraph/redis: commit job %s: %w", j.ID, err)
	}
	return nil
}
