package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// ── Graph model ───────────────────────────────────────────────────

type graphModel struct {
	ID          string     `bson:"_id"`
	Name        string     `bson:"name"`
	RootID      string     `bson:"root_id"`
	State       string     `bson:"state"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func toGraphModel(g *job.Graph) *graphModel {
	return &graphModel{
		ID:          g.ID.String(),
		Name:        g.Name,
		RootID:      optID(g.RootID),
		State:       string(g.State),
		CompletedAt: g.CompletedAt,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func fromGraphModel(m *graphModel) (*job.Graph, error) {
	gID, err := id.ParseGraphID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse graph id %q: %w", m.ID, err)
	}
	rootID, err := parseOptID(m.RootID)
	if err != nil {
		return nil, fmt.Errorf("parse root id: %w", err)
	}
	return &job.Graph{
		Entity:      jobgraph.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          gID,
		Name:        m.Name,
		RootID:      rootID,
		State:       job.GraphState(m.State),
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID               string     `bson:"_id"`
	Seq              int64      `bson:"seq"`
	GraphID          string     `bson:"graph_id"`
	ParentID         string     `bson:"parent_id,omitempty"`
	Relation         string     `bson:"relation"`
	Name             string     `bson:"name"`
	Payload          []byte     `bson:"payload"`
	State            string     `bson:"state"`
	Children         []string   `bson:"children,omitempty"`
	FollowOn         string     `bson:"follow_on,omitempty"`
	Inputs           []string   `bson:"inputs,omitempty"`
	Cores            int        `bson:"cores"`
	Memory           int64      `bson:"memory"`
	Disk             int64      `bson:"disk"`
	MaxRetries       int        `bson:"max_retries"`
	RetriesRemaining int        `bson:"retries_remaining"`
	Attempts         int        `bson:"attempts"`
	LastError        string     `bson:"last_error,omitempty"`
	ErrorKind        string     `bson:"error_kind,omitempty"`
	Timeout          int64      `bson:"timeout"`
	WorkerID         string     `bson:"worker_id,omitempty"`
	StartedAt        *time.Time `bson:"started_at,omitempty"`
	CompletedAt      *time.Time `bson:"completed_at,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:               j.ID.String(),
		GraphID:          j.GraphID.String(),
		ParentID:         optID(j.ParentID),
		Relation:         string(j.Relation),
		Name:             j.Name,
		Payload:          j.Payload,
		State:            string(j.State),
		Children:         idStrings(j.Children),
		FollowOn:         optID(j.FollowOn),
		Inputs:           idStrings(j.Inputs),
		Cores:            j.Resources.Cores,
		Memory:           j.Resources.Memory,
		Disk:             j.Resources.Disk,
		MaxRetries:       j.MaxRetries,
		RetriesRemaining: j.RetriesRemaining,
		Attempts:         j.Attempts,
		LastError:        j.LastError,
		ErrorKind:        string(j.ErrorKind),
		Timeout:          j.Timeout.Nanoseconds(),
		WorkerID:         optID(j.WorkerID),
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	j := &job.Job{
		Entity:           jobgraph.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Relation:         job.Relation(m.Relation),
		Name:             m.Name,
		Payload:          m.Payload,
		State:            job.State(m.State),
		Resources:        job.Resources{Cores: m.Cores, Memory: m.Memory, Disk: m.Disk},
		MaxRetries:       m.MaxRetries,
		RetriesRemaining: m.RetriesRemaining,
		Attempts:         m.Attempts,
		LastError:        m.LastError,
		ErrorKind:        jobgraph.Kind(m.ErrorKind),
		Timeout:          time.Duration(m.Timeout),
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
	}

	var err error
	if j.ID, err = id.ParseJobID(m.ID); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", m.ID, err)
	}
	if j.GraphID, err = id.ParseGraphID(m.GraphID); err != nil {
		return nil, fmt.Errorf("parse graph id %q: %w", m.GraphID, err)
	}
	if j.ParentID, err = parseOptID(m.ParentID); err != nil {
		return nil, fmt.Errorf("parse parent id: %w", err)
	}
	if j.FollowOn, err = parseOptID(m.FollowOn); err != nil {
		return nil, fmt.Errorf("parse follow-on id: %w", err)
	}
	if j.WorkerID, err = parseOptID(m.WorkerID); err != nil {
		return nil, fmt.Errorf("parse worker id: %w", err)
	}
	if j.Children, err = parseIDs(m.Children); err != nil {
		return nil, fmt.Errorf("children: %w", err)
	}
	if j.Inputs, err = parseIDs(m.Inputs); err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	return j, nil
}

// ── Artifact model ────────────────────────────────────────────────

type artifactModel struct {
	ID         string     `bson:"_id"`
	Owner      string     `bson:"owner"`
	State      string     `bson:"state"`
	Version    int        `bson:"version"`
	Digest     string     `bson:"digest,omitempty"`
	Size       int64      `bson:"size"`
	BackendKey string     `bson:"backend_key,omitempty"`
	SealedAt   *time.Time `bson:"sealed_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

func toArtifactModel(a *artifact.Artifact) *artifactModel {
	return &artifactModel{
		ID:         a.ID.String(),
		Owner:      a.Owner.String(),
		State:      string(a.State),
		Version:    a.Version,
		Digest:     a.Digest,
		Size:       a.Size,
		BackendKey: a.BackendKey,
		SealedAt:   a.SealedAt,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func fromArtifactModel(m *artifactModel) (*artifact.Artifact, error) {
	aID, err := id.ParseArtifactID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse artifact id %q: %w", m.ID, err)
	}
	owner, err := parseOptID(m.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	return &artifact.Artifact{
		Entity:     jobgraph.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         aID,
		Owner:      owner,
		State:      artifact.State(m.State),
		Version:    m.Version,
		Digest:     m.Digest,
		Size:       m.Size,
		BackendKey: m.BackendKey,
		SealedAt:   m.SealedAt,
	}, nil
}

// ── ID helpers ────────────────────────────────────────────────────

// optID maps the Nil ID to an empty string, which omitempty drops.
func optID(i id.ID) string {
	if i.IsNil() {
		return ""
	}
	return i.String()
}

func parseOptID(s string) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.Parse(s)
}

func idStrings(ids []id.ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func parseIDs(ss []string) ([]id.ID, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]id.ID, len(ss))
	for i, s := range ss {
		v, err := id.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
