package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

type fetchPayload struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got fetchPayload
	def := job.NewDefinition("fetch", func(_ context.Context, _ *job.Context, p fetchPayload) error {
		got = p
		return nil
	})

	job.RegisterDefinition(r, def)

	h, ok := r.Get("fetch")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(fetchPayload{URL: "https://x/a", Name: "a.bam"})
	if err := h(context.Background(), nil, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.URL != "https://x/a" {
		t.Errorf("URL = %q, want %q", got.URL, "https://x/a")
	}
	if got.Name != "a.bam" {
		t.Errorf("Name = %q, want %q", got.Name, "a.bam")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no handler for unknown job")
	}
	if r.Has("nonexistent") {
		t.Fatal("Has reported an unknown job")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := job.NewRegistry()
	wantErr := errors.New("boom")
	job.RegisterDefinition(r, job.NewDefinition("fail", func(_ context.Context, _ *job.Context, _ struct{}) error {
		return wantErr
	}))

	h, _ := r.Get("fail")
	if err := h(context.Background(), nil, nil); !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestRegistry_BadPayloadIsConfigError(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("fetch", func(_ context.Context, _ *job.Context, _ fetchPayload) error {
		return nil
	}))

	h, _ := r.Get("fetch")
	err := h(context.Background(), nil, []byte("{not json"))
	if jobgraph.KindOf(err) != jobgraph.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := job.NewRegistry()
	noop := func(_ context.Context, _ *job.Context, _ struct{}) error { return nil }
	job.RegisterDefinition(r, job.NewDefinition("upload", noop))
	job.RegisterDefinition(r, job.NewDefinition("adtex", noop))
	job.RegisterDefinition(r, job.NewDefinition("download", noop))

	names := r.Names()
	want := []string{"adtex", "download", "upload"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestNewSpec_MergesOptions(t *testing.T) {
	input := id.NewArtifactID()
	def := job.NewDefinition("fetch",
		func(_ context.Context, _ *job.Context, _ fetchPayload) error { return nil },
		job.WithMaxRetries(4),
		job.WithCores(2),
	)

	s, err := job.NewSpec(def, fetchPayload{URL: "u"}, job.WithDisk(80<<30), job.WithInputs(input))
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	if s.Name != "fetch" {
		t.Errorf("Name = %q, want %q", s.Name, "fetch")
	}
	if s.Opts.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", s.Opts.MaxRetries)
	}
	if s.Opts.Resources.Cores != 2 || s.Opts.Resources.Disk != 80<<30 {
		t.Errorf("Resources = %+v", s.Opts.Resources)
	}
	if len(s.Opts.Inputs) != 1 || s.Opts.Inputs[0].String() != input.String() {
		t.Errorf("Inputs = %v", s.Opts.Inputs)
	}
	if len(def.Opts.Inputs) != 0 {
		t.Errorf("definition options were mutated: %v", def.Opts.Inputs)
	}

	j := s.NewJob(id.NewGraphID(), id.NewJobID(), job.RelationChild)
	if j.State != job.StatePending {
		t.Errorf("State = %q, want %q", j.State, job.StatePending)
	}
	if j.RetriesRemaining != 4 {
		t.Errorf("RetriesRemaining = %d, want 4", j.RetriesRemaining)
	}
}

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state job.State
		want  bool
	}{
		{job.StatePending, false},
		{job.StateRunnable, false},
		{job.StateRunning, false},
		{job.StateSucceeded, true},
		{job.StateFailed, true},
		{job.StateCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := job.NewRegistry()
	var ran string
	job.RegisterDefinition(r, job.NewDefinition("muse.call", func(context.Context, *job.Context, struct{}) error {
		ran = "first"
		return nil
	}))
	job.RegisterDefinition(r, job.NewDefinition("muse.call", func(context.Context, *job.Context, struct{}) error {
		ran = "second"
		return nil
	}))

	h, _ := r.Get("muse.call")
	if err := h(context.Background(), nil, []byte(`{}`)); err != nil || ran != "second" {
		t.Errorf("ran %q, err %v", ran, err)
	}
	if names := r.Names(); len(names) != 1 {
		t.Errorf("names = %v", names)
	}
}
