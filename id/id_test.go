package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/jobgraph/id"
)

var kinds = []struct {
	prefix id.Prefix
	gen    func() id.ID
	parse  func(string) (id.ID, error)
}{
	{id.PrefixJob, id.NewJobID, id.ParseJobID},
	{id.PrefixGraph, id.NewGraphID, id.ParseGraphID},
	{id.PrefixArtifact, id.NewArtifactID, id.ParseArtifactID},
	{id.PrefixWorker, id.NewWorkerID, id.ParseWorkerID},
}

func TestKinds(t *testing.T) {
	for i, k := range kinds {
		t.Run(string(k.prefix), func(t *testing.T) {
			fresh := k.gen()
			if !strings.HasPrefix(fresh.String(), string(k.prefix)+"_") || fresh.Prefix() != k.prefix {
				t.Fatalf("generated %q", fresh)
			}

			parsed, err := k.parse(fresh.String())
			if err != nil || parsed.String() != fresh.String() {
				t.Fatalf("parse(%q) = %q, %v", fresh, parsed, err)
			}

			other := kinds[(i+1)%len(kinds)].gen()
			if _, err := k.parse(other.String()); err == nil {
				t.Errorf("parse accepted %q", other)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "job_", "job-01h2xcejqtf2nbrexx3vqjhp41", "JOB_01h2xcejqtf2nbrexx3vqjhp41"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded", in)
		}
	}
}

func TestNil(t *testing.T) {
	var zero id.ID
	if !zero.IsNil() || zero.String() != "" || zero.Prefix() != "" {
		t.Errorf("zero ID = %q / %q", zero, zero.Prefix())
	}
	if id.NewJobID().IsNil() {
		t.Error("generated ID is nil")
	}
}

func TestUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		s := id.NewArtifactID().String()
		if seen[s] {
			t.Fatalf("duplicate id %q", s)
		}
		seen[s] = true
	}
}

func TestJSON(t *testing.T) {
	type node struct {
		Job      id.JobID        `json:"job"`
		FollowOn id.JobID        `json:"follow_on"`
		Inputs   []id.ArtifactID `json:"inputs"`
	}

	in := node{Job: id.NewJobID(), Inputs: []id.ArtifactID{id.NewArtifactID(), id.NewArtifactID()}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"follow_on":""`) {
		t.Errorf("nil follow-on encoded as %s", data)
	}

	var out node
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Job.String() != in.Job.String() || !out.FollowOn.IsNil() {
		t.Errorf("out = %+v", out)
	}
	if len(out.Inputs) != 2 || out.Inputs[1].String() != in.Inputs[1].String() {
		t.Errorf("inputs = %v, want %v", out.Inputs, in.Inputs)
	}

	if err := json.Unmarshal([]byte(`{"job":"bogus"}`), &out); err == nil {
		t.Error("decoded a malformed id")
	}
}

func TestValueScan(t *testing.T) {
	g := id.NewGraphID()
	v, err := g.Value()
	if err != nil || v != g.String() {
		t.Fatalf("Value() = %v, %v", v, err)
	}
	if v, _ := id.Nil.Value(); v != nil {
		t.Errorf("Nil.Value() = %v, want NULL", v)
	}

	for _, src := range []any{g.String(), []byte(g.String())} {
		var got id.ID
		if err := got.Scan(src); err != nil || got.String() != g.String() {
			t.Errorf("Scan(%T) = %q, %v", src, got, err)
		}
	}
	for _, src := range []any{nil, "", []byte{}} {
		got := id.NewJobID()
		if err := got.Scan(src); err != nil || !got.IsNil() {
			t.Errorf("Scan(%#v) = %q, %v, want Nil", src, got, err)
		}
	}
	var got id.ID
	if err := got.Scan(42); err == nil {
		t.Error("Scan(int) succeeded")
	}
}
