//go:build integration

package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
	"github.com/xraph/jobgraph/store/redis"
)

// setupTestStore starts a Redis container and returns a Store on it.
func setupTestStore(t *testing.T) *redis.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	s := redis.New(client)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return s
}

func newJob(g *job.Graph, parent id.JobID, name string, rel job.Relation) *job.Job {
	return &job.Job{
		Entity:           jobgraph.NewEntity(),
		ID:               id.NewJobID(),
		GraphID:          g.ID,
		ParentID:         parent,
		Relation:         rel,
		Name:             name,
		Payload:          []byte(`{"sample":"s1"}`),
		State:            job.StatePending,
		Resources:        job.Resources{Cores: 1, Memory: 2 << 30, Disk: 2 << 30},
		MaxRetries:       1,
		RetriesRemaining: 1,
		Timeout:          time.Minute,
	}
}

func TestStore_GraphStateIndex(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := &job.Graph{Entity: jobgraph.NewEntity(), ID: id.NewGraphID(), Name: "first", State: job.GraphRunning}
	second := &job.Graph{Entity: jobgraph.NewEntity(), ID: id.NewGraphID(), Name: "second", State: job.GraphRunning}
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	for _, g := range []*job.Graph{first, second} {
		if err := s.CreateGraph(ctx, g); err != nil {
			t.Fatalf("CreateGraph: %v", err)
		}
	}
	if err := s.CreateGraph(ctx, first); !errors.Is(err, jobgraph.ErrGraphAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}

	running, err := s.ListGraphs(ctx, job.GraphRunning)
	if err != nil {
		t.Fatalf("ListGraphs: %v", err)
	}
	if len(running) != 2 || running[0].Name != "first" || running[1].Name != "second" {
		t.Fatalf("running = %+v", running)
	}

	first.State = job.GraphFailed
	if err := s.UpdateGraph(ctx, first); err != nil {
		t.Fatalf("UpdateGraph: %v", err)
	}
	running, _ = s.ListGraphs(ctx, job.GraphRunning)
	failed, _ := s.ListGraphs(ctx, job.GraphFailed)
	if len(running) != 1 || len(failed) != 1 || failed[0].Name != "first" {
		t.Errorf("running=%d failed=%d", len(running), len(failed))
	}
}

func TestStore_JobCommit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := &job.Graph{Entity: jobgraph.NewEntity(), ID: id.NewGraphID(), Name: "g", State: job.GraphRunning}
	root := newJob(g, id.Nil, "root", job.RelationRoot)
	g.RootID = root.ID
	if err := s.CreateGraph(ctx, g); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateJob(ctx, root); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	c := newJob(g, root.ID, "child", job.RelationChild)
	fo := newJob(g, root.ID, "follow-on", job.RelationFollowOn)
	root.State = job.StateSucceeded
	root.Children = []id.JobID{c.ID}
	root.FollowOn = fo.ID
	if err := s.CommitJob(ctx, root, []*job.Job{c, fo}); err != nil {
		t.Fatalf("CommitJob: %v", err)
	}

	jobs, err := s.ListJobs(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 || jobs[0].Name != "root" || jobs[1].Name != "child" || jobs[2].Name != "follow-on" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].State != job.StateSucceeded || jobs[0].FollowOn.String() != fo.ID.String() {
		t.Errorf("root = %+v", jobs[0])
	}
	if jobs[1].ParentID.String() != root.ID.String() || jobs[1].Timeout != time.Minute {
		t.Errorf("child = %+v", jobs[1])
	}

	// A conflicting spawn leaves everything untouched.
	root.State = job.StateFailed
	if err := s.CommitJob(ctx, root, []*job.Job{c}); !errors.Is(err, jobgraph.ErrJobAlreadyExists) {
		t.Fatalf("conflicting commit err = %v", err)
	}
	got, err := s.GetJob(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != job.StateSucceeded {
		t.Errorf("root state = %q, want succeeded", got.State)
	}

	missing := newJob(g, id.Nil, "missing", job.RelationRoot)
	if err := s.CommitJob(ctx, missing, nil); !errors.Is(err, jobgraph.ErrJobNotFound) {
		t.Errorf("missing commit err = %v", err)
	}
	if err := s.UpdateJob(ctx, missing); !errors.Is(err, jobgraph.ErrJobNotFound) {
		t.Errorf("missing update err = %v", err)
	}
}

func TestStore_Artifacts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := &artifact.Artifact{Entity: jobgraph.NewEntity(), ID: id.NewArtifactID(), Owner: id.NewJobID(), State: artifact.StateReserved}
	if err := s.CreateArtifact(ctx, a); err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}
	if err := s.CreateArtifact(ctx, a); !errors.Is(err, jobgraph.ErrArtifactAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}

	a.State = artifact.StateSealed
	a.Version = 1
	a.Digest = "d1"
	if err := s.UpdateArtifact(ctx, a); err != nil {
		t.Fatalf("UpdateArtifact: %v", err)
	}
	got, err := s.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if !got.Sealed() || got.Digest != "d1" || got.Owner.String() != a.Owner.String() {
		t.Errorf("artifact = %+v", got)
	}
	if _, err := s.GetArtifact(ctx, id.NewArtifactID()); !errors.Is(err, jobgraph.ErrArtifactNotFound) {
		t.Errorf("missing err = %v", err)
	}
}
