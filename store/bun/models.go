package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// ── Graph model ───────────────────────────────────────────────────

type graphModel struct {
	bun.BaseModel `bun:"table:jobgraph_graphs"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	RootID      string     `bun:"root_id,notnull"`
	State       string     `bun:"state,notnull"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`
}

func toGraphModel(g *job.Graph) *graphModel {
	return &graphModel{
		ID:          g.ID.String(),
		Name:        g.Name,
		RootID:      g.RootID.String(),
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
	rootID, err := parseNullID(&m.RootID)
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

// jobModel maps jobgraph_jobs. The seq column is assigned by the
// database and only used for ordering.
type jobModel struct {
	bun.BaseModel `bun:"table:jobgraph_jobs"`

	ID               string     `bun:"id,pk"`
	GraphID          string     `bun:"graph_id,notnull"`
	ParentID         *string    `bun:"parent_id"`
	Relation         string     `bun:"relation,notnull"`
	Name             string     `bun:"name,notnull"`
	Payload          []byte     `bun:"payload,notnull,type:bytea"`
	State            string     `bun:"state,notnull"`
	Children         []string   `bun:"children,array"`
	FollowOn         *string    `bun:"follow_on"`
	Inputs           []string   `bun:"inputs,array"`
	Cores            int        `bun:"cores,notnull"`
	Memory           int64      `bun:"memory,notnull"`
	Disk             int64      `bun:"disk,notnull"`
	MaxRetries       int        `bun:"max_retries,notnull"`
	RetriesRemaining int        `bun:"retries_remaining,notnull"`
	Attempts         int        `bun:"attempts,notnull"`
	LastError        string     `bun:"last_error,notnull"`
	ErrorKind        string     `bun:"error_kind,notnull"`
	Timeout          int64      `bun:"timeout,notnull"`
	WorkerID         *string    `bun:"worker_id"`
	StartedAt        *time.Time `bun:"started_at"`
	CompletedAt      *time.Time `bun:"completed_at"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	payload := j.Payload
	if payload == nil {
		payload = []byte{}
	}
	return &jobModel{
		ID:               j.ID.String(),
		GraphID:          j.GraphID.String(),
		ParentID:         nullID(j.ParentID),
		Relation:         string(j.Relation),
		Name:             j.Name,
		Payload:          payload,
		State:            string(j.State),
		Children:         idStrings(j.Children),
		FollowOn:         nullID(j.FollowOn),
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
		WorkerID:         nullID(j.WorkerID),
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
	if j.ParentID, err = parseNullID(m.ParentID); err != nil {
		return nil, fmt.Errorf("parse parent id: %w", err)
	}
	if j.FollowOn, err = parseNullID(m.FollowOn); err != nil {
		return nil, fmt.Errorf("parse follow-on id: %w", err)
	}
	if j.WorkerID, err = parseNullID(m.WorkerID); err != nil {
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
	bun.BaseModel `bun:"table:jobgraph_artifacts"`

	ID         string     `bun:"id,pk"`
	Owner      string     `bun:"owner,notnull"`
	State      string     `bun:"state,notnull"`
	Version    int        `bun:"version,notnull"`
	Digest     string     `bun:"digest,notnull"`
	Size       int64      `bun:"size,notnull"`
	BackendKey string     `bun:"backend_key,notnull"`
	SealedAt   *time.Time `bun:"sealed_at"`
	CreatedAt  time.Time  `bun:"created_at,notnull"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull"`
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
	owner, err := parseNullID(&m.Owner)
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

// migrationRow is a jobgraph_migrations row, shared with the postgres store.
type migrationRow struct {
	bun.BaseModel `bun:"table:jobgraph_migrations"`

	Filename  string    `bun:"filename,pk,type:text"`
	AppliedAt time.Time `bun:"applied_at,nullzero,notnull,type:timestamptz,default:current_timestamp"`
}
