//go:build integration

package mongo_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	mongomodule "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
	"github.com/xraph/jobgraph/store/mongo"
)

// setupTestStore starts a single-node replica set and returns a migrated
// Store on a fresh database.
func setupTestStore(t *testing.T) *mongo.Store {
	t.Helper()

	ctx := context.Background()

	container, err := mongomodule.Run(ctx, "mongo:7", mongomodule.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri).SetDirect(true))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	s := mongo.NewFromClient(client, mongo.WithDatabase("jobgraph_test"), mongo.WithLogger(slog.Default()))
	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	return s
}

func newGraph(t *testing.T, s *mongo.Store) (*job.Graph, *job.Job) {
	t.Helper()
	ctx := context.Background()

	g := &job.Graph{Entity: jobgraph.NewEntity(), ID: id.NewGraphID(), Name: "sample", State: job.GraphRunning}
	root := &job.Job{
		Entity:           jobgraph.NewEntity(),
		ID:               id.NewJobID(),
		GraphID:          g.ID,
		Relation:         job.RelationRoot,
		Name:             "root",
		Payload:          []byte(`{}`),
		State:            job.StatePending,
		Resources:        job.Resources{Cores: 2, Memory: 1 << 30, Disk: 4 << 30},
		MaxRetries:       1,
		RetriesRemaining: 1,
	}
	g.RootID = root.ID
	if err := s.CreateGraph(ctx, g); err != nil {
		t.Fatalf("CreateGraph: %v", err)
	}
	if err := s.CreateJob(ctx, root); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return g, root
}

func spawn(g *job.Graph, parent *job.Job, name string, rel job.Relation) *job.Job {
	return &job.Job{
		Entity:           jobgraph.NewEntity(),
		ID:               id.NewJobID(),
		GraphID:          g.ID,
		ParentID:         parent.ID,
		Relation:         rel,
		Name:             name,
		Payload:          []byte(`{"n":1}`),
		State:            job.StatePending,
		MaxRetries:       2,
		RetriesRemaining: 2,
	}
}

func TestStore_PingAndMigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestGraphStore_CRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	g, _ := newGraph(t, s)

	running, err := s.ListGraphs(ctx, job.GraphRunning)
	if err != nil {
		t.Fatalf("ListGraphs: %v", err)
	}
	if len(running) != 1 || running[0].ID.String() != g.ID.String() {
		t.Fatalf("running graphs = %v", running)
	}

	now := time.Now().UTC()
	g.State = job.GraphFailed
	g.CompletedAt = &now
	if err := s.UpdateGraph(ctx, g); err != nil {
		t.Fatalf("UpdateGraph: %v", err)
	}
	got, err := s.GetGraph(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	if got.State != job.GraphFailed || got.CompletedAt == nil || got.RootID.String() != g.RootID.String() {
		t.Errorf("graph = %+v", got)
	}

	if _, err := s.GetGraph(ctx, id.NewGraphID()); !errors.Is(err, jobgraph.ErrGraphNotFound) {
		t.Errorf("missing graph err = %v", err)
	}
	if err := s.CreateGraph(ctx, g); !errors.Is(err, jobgraph.ErrGraphAlreadyExists) {
		t.Errorf("duplicate graph err = %v", err)
	}
}

func TestJobStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, root := newGraph(t, s)

	got, err := s.GetJob(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Resources != root.Resources || string(got.Payload) != "{}" {
		t.Errorf("job = %+v", got)
	}
	if !got.ParentID.IsNil() || !got.FollowOn.IsNil() || !got.WorkerID.IsNil() {
		t.Errorf("expected nil parent/follow-on/worker: %+v", got)
	}

	root.State = job.StateFailed
	root.Attempts = 2
	root.ErrorKind = jobgraph.KindTool
	root.Timeout = time.Hour
	if err := s.UpdateJob(ctx, root); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	got, err = s.GetJob(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateFailed || got.Attempts != 2 || got.ErrorKind != jobgraph.KindTool || got.Timeout != time.Hour {
		t.Errorf("job = %+v", got)
	}

	if err := s.CreateJob(ctx, root); !errors.Is(err, jobgraph.ErrJobAlreadyExists) {
		t.Errorf("duplicate job err = %v", err)
	}
	missing := spawn(&job.Graph{ID: id.NewGraphID()}, root, "missing", job.RelationChild)
	if err := s.UpdateJob(ctx, missing); !errors.Is(err, jobgraph.ErrJobNotFound) {
		t.Errorf("update missing err = %v", err)
	}
}

func TestJobStore_CommitJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	g, root := newGraph(t, s)

	c1 := spawn(g, root, "c1", job.RelationChild)
	c2 := spawn(g, root, "c2", job.RelationChild)
	fo := spawn(g, root, "fo", job.RelationFollowOn)

	root.State = job.StateSucceeded
	root.Children = []id.JobID{c1.ID, c2.ID}
	root.FollowOn = fo.ID
	if err := s.CommitJob(ctx, root, []*job.Job{c1, c2, fo}); err != nil {
		t.Fatalf("CommitJob: %v", err)
	}

	jobs, err := s.ListJobs(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	want := []string{"root", "c1", "c2", "fo"}
	if len(jobs) != len(want) {
		t.Fatalf("jobs = %d, want %d", len(jobs), len(want))
	}
	for i, j := range jobs {
		if j.Name != want[i] {
			t.Fatalf("job %d = %q, want %q", i, j.Name, want[i])
		}
	}
	if jobs[0].FollowOn.String() != fo.ID.String() || jobs[1].ParentID.String() != root.ID.String() {
		t.Errorf("links = %+v", jobs[0])
	}
}

func TestJobStore_CommitJobRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	g, root := newGraph(t, s)

	c1 := spawn(g, root, "c1", job.RelationChild)
	dup := spawn(g, root, "dup", job.RelationChild)
	dup.ID = c1.ID

	root.State = job.StateSucceeded
	if err := s.CommitJob(ctx, root, []*job.Job{c1, dup}); !errors.Is(err, jobgraph.ErrJobAlreadyExists) {
		t.Fatalf("CommitJob err = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StatePending {
		t.Errorf("root state = %q, want pending after rollback", got.State)
	}
	if _, err := s.GetJob(ctx, c1.ID); !errors.Is(err, jobgraph.ErrJobNotFound) {
		t.Errorf("c1 err = %v, want ErrJobNotFound", err)
	}
}

func TestArtifactStore_CRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := &artifact.Artifact{
		Entity: jobgraph.NewEntity(),
		ID:     id.NewArtifactID(),
		Owner:  id.NewJobID(),
		State:  artifact.StateReserved,
	}
	if err := s.CreateArtifact(ctx, a); err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}
	if err := s.CreateArtifact(ctx, a); !errors.Is(err, jobgraph.ErrArtifactAlreadyExists) {
		t.Errorf("duplicate artifact err = %v", err)
	}

	now := time.Now().UTC()
	a.State = artifact.StateSealed
	a.Version = 1
	a.Digest = "abc123"
	a.Size = 42
	a.SealedAt = &now
	if err := s.UpdateArtifact(ctx, a); err != nil {
		t.Fatalf("UpdateArtifact: %v", err)
	}
	got, err := s.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if !got.Sealed() || got.Size != 42 || got.Owner.String() != a.Owner.String() {
		t.Errorf("artifact = %+v", got)
	}
}
