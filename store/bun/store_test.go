//go:build integration

package bunstore_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
	bunstore "github.com/xraph/jobgraph/store/bun"
	"github.com/xraph/jobgraph/store/postgres"
)

// setupTestStore creates a Postgres container and returns a migrated Bun
// Store plus the connection string.
func setupTestStore(t *testing.T) (*bunstore.Store, string) {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("jobgraph_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s := bunstore.Open(connStr, bunstore.WithLogger(slog.Default()))
	t.Cleanup(func() { _ = s.Close() })

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	return s, connStr
}

func newGraph(t *testing.T, s *bunstore.Store) (*job.Graph, *job.Job) {
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

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestStore_PingAndMigrateIdempotent(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

// The bun and pgx backends share one schema.
func TestStore_SharesSchemaWithPostgres(t *testing.T) {
	s, connStr := setupTestStore(t)
	ctx := context.Background()
	g, root := newGraph(t, s)

	pg, err := postgres.New(ctx, connStr)
	if err != nil {
		t.Fatalf("postgres.New: %v", err)
	}
	t.Cleanup(func() { _ = pg.Close() })

	if err := pg.Migrate(ctx); err != nil {
		t.Fatalf("postgres migrate over bun schema: %v", err)
	}
	jobs, err := pg.ListJobs(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID.String() != root.ID.String() || jobs[0].Resources != root.Resources {
		t.Errorf("jobs via postgres = %+v", jobs)
	}
}

// ──────────────────────────────────────────────────
// Graph and job tests
// ──────────────────────────────────────────────────

func TestGraphStore_CRUD(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	g, _ := newGraph(t, s)

	now := time.Now().UTC()
	g.State = job.GraphSucceeded
	g.CompletedAt = &now
	if err := s.UpdateGraph(ctx, g); err != nil {
		t.Fatalf("UpdateGraph: %v", err)
	}
	done, err := s.ListGraphs(ctx, job.GraphSucceeded)
	if err != nil {
		t.Fatalf("ListGraphs: %v", err)
	}
	if len(done) != 1 || done[0].CompletedAt == nil {
		t.Fatalf("succeeded graphs = %+v", done)
	}

	if _, err := s.GetGraph(ctx, id.NewGraphID()); !errors.Is(err, jobgraph.ErrGraphNotFound) {
		t.Errorf("missing graph err = %v", err)
	}
	if err := s.CreateGraph(ctx, g); !errors.Is(err, jobgraph.ErrGraphAlreadyExists) {
		t.Errorf("duplicate graph err = %v", err)
	}
}

func TestJobStore_UpdateAndRead(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_, root := newGraph(t, s)

	root.State = job.StateFailed
	root.Attempts = 2
	root.LastError = "exit status 1"
	root.ErrorKind = jobgraph.KindTool
	root.WorkerID = id.NewWorkerID()
	if err := s.UpdateJob(ctx, root); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	got, err := s.GetJob(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateFailed || got.Attempts != 2 || got.ErrorKind != jobgraph.KindTool {
		t.Errorf("job = %+v", got)
	}
	if got.WorkerID.String() != root.WorkerID.String() || !got.ParentID.IsNil() {
		t.Errorf("ids = worker %q parent %q", got.WorkerID, got.ParentID)
	}

	if err := s.CreateJob(ctx, root); !errors.Is(err, jobgraph.ErrJobAlreadyExists) {
		t.Errorf("duplicate job err = %v", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, jobgraph.ErrJobNotFound) {
		t.Errorf("missing job err = %v", err)
	}
}

func TestJobStore_CommitJob(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	g, root := newGraph(t, s)

	c1 := spawn(g, root, "c1", job.RelationChild)
	c2 := spawn(g, root, "c2", job.RelationChild)
	fo := spawn(g, root, "fo", job.RelationFollowOn)
	fo.Inputs = []id.ArtifactID{id.NewArtifactID()}

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
	if len(jobs[0].Children) != 2 || len(jobs[3].Inputs) != 1 {
		t.Errorf("arrays = children %v inputs %v", jobs[0].Children, jobs[3].Inputs)
	}
}

func TestJobStore_CommitJobRollsBack(t *testing.T) {
	s, _ := setupTestStore(t)
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
}

// ──────────────────────────────────────────────────
// Artifact tests
// ──────────────────────────────────────────────────

func TestArtifactStore_CRUD(t *testing.T) {
	s, _ := setupTestStore(t)
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

	now := time.Now().UTC()
	a.State = artifact.StateSealed
	a.Version = 1
	a.Digest = "abc123"
	a.Size = 42
	a.BackendKey = "sha256/ab/abc123"
	a.SealedAt = &now
	if err := s.UpdateArtifact(ctx, a); err != nil {
		t.Fatalf("UpdateArtifact: %v", err)
	}

	got, err := s.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if !got.Sealed() || got.Version != 1 || got.BackendKey != a.BackendKey {
		t.Errorf("artifact = %+v", got)
	}
	if _, err := s.GetArtifact(ctx, id.NewArtifactID()); !errors.Is(err, jobgraph.ErrArtifactNotFound) {
		t.Errorf("missing artifact err = %v", err)
	}
}
