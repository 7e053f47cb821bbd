package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/artifact/localfs"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
	"github.com/xraph/jobgraph/middleware"
	"github.com/xraph/jobgraph/store/memory"
	"github.com/xraph/jobgraph/worker"
)

type leafPayload struct {
	Sample string `json:"sample"`
}

var leafDef = job.NewDefinition("leaf", func(_ context.Context, _ *job.Context, _ leafPayload) error {
	return nil
})

func newExecutor(t *testing.T, reg *job.Registry, opts ...worker.ExecutorOption) (*worker.Executor, string) {
	t.Helper()
	root := t.TempDir()
	logger := slog.Default()
	opts = append([]worker.ExecutorOption{worker.WithWorkRoot(root)}, opts...)
	return worker.NewExecutor(reg, nil, logger, []middleware.Middleware{middleware.Recover(logger)}, opts...), root
}

func TestExecutor_UnknownJobIsConfigError(t *testing.T) {
	e, _ := newExecutor(t, job.NewRegistry())

	res := e.Execute(context.Background(), newTestJob("missing", job.Resources{}))
	if jobgraph.KindOf(res.Err) != jobgraph.KindConfig {
		t.Fatalf("expected config error, got %v", res.Err)
	}
	if !errors.Is(res.Err, jobgraph.ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", res.Err)
	}
}

func TestExecutor_ReturnsSpawnedJobs(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, leafDef)
	job.RegisterDefinition(reg, job.NewDefinition("fan-out", func(_ context.Context, jc *job.Context, _ noPayload) error {
		for _, s := range []string{"S1", "S2"} {
			if _, err := job.Child(jc, leafDef, leafPayload{Sample: s}); err != nil {
				return err
			}
		}
		_, err := job.FollowOn(jc, leafDef, leafPayload{Sample: "merge"})
		return err
	}))
	e, _ := newExecutor(t, reg)

	parent := newTestJob("fan-out", job.Resources{})
	res := e.Execute(context.Background(), parent)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(res.Children))
	}
	if res.FollowOn == nil {
		t.Fatal("expected a follow-on")
	}
	for _, c := range res.Children {
		if c.ParentID.String() != parent.ID.String() || c.Relation != job.RelationChild {
			t.Errorf("child not attached to parent: %+v", c)
		}
		if c.GraphID.String() != parent.GraphID.String() {
			t.Errorf("child graph: want %s, got %s", parent.GraphID, c.GraphID)
		}
	}
	if res.FollowOn.Relation != job.RelationFollowOn {
		t.Errorf("follow-on relation: got %q", res.FollowOn.Relation)
	}
}

func TestExecutor_FailureDiscardsSpawns(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, leafDef)
	job.RegisterDefinition(reg, job.NewDefinition("flaky", func(_ context.Context, jc *job.Context, _ noPayload) error {
		if _, err := job.Child(jc, leafDef, leafPayload{Sample: "S1"}); err != nil {
			return err
		}
		return errors.New("boom")
	}))
	e, _ := newExecutor(t, reg)

	res := e.Execute(context.Background(), newTestJob("flaky", job.Resources{}))
	if res.Err == nil {
		t.Fatal("expected error")
	}
	if len(res.Children) != 0 || res.FollowOn != nil {
		t.Errorf("expected spawns of a failed attempt to be discarded, got %d children", len(res.Children))
	}
}

func TestExecutor_FailureDiscardsCreatedArtifacts(t *testing.T) {
	dir := t.TempDir()
	backend, err := localfs.New(filepath.Join(dir, "backend"))
	if err != nil {
		t.Fatal(err)
	}
	st := memory.New()
	mgr, err := artifact.NewManager(st, backend, filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	var created []id.ArtifactID
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("stage", func(ctx context.Context, jc *job.Context, _ noPayload) error {
		out, err := jc.Reserve(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(jc.Path("ref.fa"), []byte("ACGT"), 0o644); err != nil {
			return err
		}
		ref, err := jc.Write(ctx, "ref.fa")
		if err != nil {
			return err
		}
		created = append(created, out, ref)
		return errors.New("download failed")
	}))
	e := worker.NewExecutor(reg, mgr, slog.Default(), nil, worker.WithWorkRoot(filepath.Join(dir, "jobs")))

	if res := e.Execute(context.Background(), newTestJob("stage", job.Resources{})); res.Err == nil {
		t.Fatal("expected error")
	}
	if len(created) != 2 {
		t.Fatalf("created = %v", created)
	}
	for _, artID := range created {
		if _, err := st.GetArtifact(context.Background(), artID); !errors.Is(err, jobgraph.ErrArtifactNotFound) {
			t.Errorf("artifact %s survived the failed attempt: %v", artID, err)
		}
	}
}

func TestExecutor_WorkDirRecreatedPerAttempt(t *testing.T) {
	reg := job.NewRegistry()
	var sawLeftover bool
	job.RegisterDefinition(reg, job.NewDefinition("scratch", func(_ context.Context, jc *job.Context, _ noPayload) error {
		if _, err := os.Stat(jc.Path("partial.out")); err == nil {
			sawLeftover = true
		}
		if err := os.WriteFile(jc.Path("partial.out"), []byte("half"), 0o644); err != nil {
			return err
		}
		if jc.Attempt() == 1 {
			return errors.New("tool crashed")
		}
		return nil
	}))
	e, root := newExecutor(t, reg, worker.WithKeepWorkDirs(true))

	j := newTestJob("scratch", job.Resources{})
	if res := e.Execute(context.Background(), j); res.Err == nil {
		t.Fatal("expected first attempt to fail")
	}
	j.Attempts = 2
	if res := e.Execute(context.Background(), j); res.Err != nil {
		t.Fatalf("second attempt: %v", res.Err)
	}
	if sawLeftover {
		t.Error("second attempt observed a file from the first attempt")
	}

	want := filepath.Join(root, j.GraphID.String(), j.ID.String(), "attempt-2")
	if got := e.WorkDir(j); got != want {
		t.Errorf("WorkDir: want %q, got %q", want, got)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected kept work dir: %v", err)
	}
}

func TestExecutor_RemovesWorkDir(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("tidy", func(_ context.Context, jc *job.Context, _ noPayload) error {
		return os.WriteFile(jc.Path("out.txt"), []byte("x"), 0o644)
	}))
	e, _ := newExecutor(t, reg)

	j := newTestJob("tidy", job.Resources{})
	if res := e.Execute(context.Background(), j); res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if _, err := os.Stat(e.WorkDir(j)); !os.IsNotExist(err) {
		t.Errorf("expected work dir to be removed, stat err = %v", err)
	}
}

func TestExecutor_RecoversPanic(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("panicky", func(_ context.Context, _ *job.Context, _ noPayload) error {
		panic("bad input")
	}))
	e, _ := newExecutor(t, reg)

	if res := e.Execute(context.Background(), newTestJob("panicky", job.Resources{})); res.Err == nil {
		t.Fatal("expected panic to surface as an error")
	}
}
