package job

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
)

// Spec declares a job that has not been created yet: the handler name,
// the encoded payload and the merged options. Build one with NewSpec so
// the payload type is checked against the definition at compile time.
type Spec struct {
	Name    string
	Payload []byte
	Opts    Options
}

// NewSpec builds a Spec for def. Definition options apply first, then opts.
func NewSpec[T any](def *Definition[T], payload T, opts ...Option) (Spec, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Spec{}, fmt.Errorf("marshal payload for job %q: %w", def.Name, err)
	}

	o := def.Opts
	o.Inputs = append([]id.ArtifactID(nil), def.Opts.Inputs...)
	for _, opt := range opts {
		opt(&o)
	}

	return Spec{Name: def.Name, Payload: data, Opts: o}, nil
}

// MustSpec is like NewSpec but panics on error. Use for payloads that
// cannot fail to encode.
func MustSpec[T any](def *Definition[T], payload T, opts ...Option) Spec {
	s, err := NewSpec(def, payload, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// NewJob materializes s into a pending job of graph graphID attached to
// parent with the given relation. The ID is assigned here, once.
func (s Spec) NewJob(graphID id.GraphID, parent id.JobID, rel Relation) *Job {
	return &Job{
		Entity:           jobgraph.NewEntity(),
		ID:               id.NewJobID(),
		GraphID:          graphID,
		ParentID:         parent,
		Relation:         rel,
		Name:             s.Name,
		Payload:          append([]byte(nil), s.Payload...),
		State:            StatePending,
		Inputs:           append([]id.ArtifactID(nil), s.Opts.Inputs...),
		Resources:        s.Opts.Resources,
		MaxRetries:       s.Opts.MaxRetries,
		RetriesRemaining: s.Opts.MaxRetries,
		Timeout:          s.Opts.Timeout,
	}
}
