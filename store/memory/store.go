// Package memory provides a fully in-memory store.Store. It is safe for
// concurrent use and intended for tests, development and single-run CLI
// invocations that do not need to survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store      = (*Store)(nil)
	_ artifact.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	graphs    map[string]*job.Graph
	jobs      map[string]*job.Job
	graphJobs map[string][]string // graph ID → job IDs in creation order
	artifacts map[string]*artifact.Artifact
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		graphs:    make(map[string]*job.Graph),
		jobs:      make(map[string]*job.Job),
		graphJobs: make(map[string][]string),
		artifacts: make(map[string]*artifact.Artifact),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Graph Store
// ──────────────────────────────────────────────────

// CreateGraph persists a new graph.
func (m *Store) CreateGraph(_ context.Context, g *job.Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := g.ID.String()
	if _, exists := m.graphs[key]; exists {
		return jobgraph.ErrGraphAlreadyExists
	}
	cp := *g
	m.graphs[key] = &cp
	return nil
}

// GetGraph retrieves a graph by ID.
func (m *Store) GetGraph(_ context.Context, graphID id.GraphID) (*job.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.graphs[graphID.String()]
	if !ok {
		return nil, jobgraph.ErrGraphNotFound
	}
	cp := *g
	return &cp, nil
}

// UpdateGraph persists changes to an existing graph.
func (m *Store) UpdateGraph(_ context.Context, g *job.Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := g.ID.String()
	if _, ok := m.graphs[key]; !ok {
		return jobgraph.ErrGraphNotFound
	}
	cp := *g
	m.graphs[key] = &cp
	return nil
}

// ListGraphs returns graphs in the given state, oldest first.
func (m *Store) ListGraphs(_ context.Context, state job.GraphState) ([]*job.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*job.Graph, 0)
	for _, g := range m.graphs {
		if g.State != state {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].ID.String() < out[k].ID.String()
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID.String()]; exists {
		return jobgraph.ErrJobAlreadyExists
	}
	m.insertJob(j)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobgraph.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return jobgraph.ErrJobNotFound
	}
	m.jobs[key] = j.Clone()
	return nil
}

// ListJobs returns every job of a graph in creation order.
func (m *Store) ListJobs(_ context.Context, graphID id.GraphID) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.graphJobs[graphID.String()]
	out := make([]*job.Job, 0, len(keys))
	for _, key := range keys {
		out = append(out, m.jobs[key].Clone())
	}
	return out, nil
}

// CommitJob atomically persists j and creates the jobs it spawned.
func (m *Store) CommitJob(_ context.Context, j *job.Job, spawned []*job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[j.ID.String()]; !ok {
		return jobgraph.ErrJobNotFound
	}
	seen := make(map[string]struct{}, len(spawned))
	for _, s := range spawned {
		key := s.ID.String()
		if _, exists := m.jobs[key]; exists {
			return jobgraph.ErrJobAlreadyExists
		}
		if _, dup := seen[key]; dup {
			return jobgraph.ErrJobAlreadyExists
		}
		seen[key] = struct{}{}
	}

	m.jobs[j.ID.String()] = j.Clone()
	for _, s := range spawned {
		m.insertJob(s)
	}
	return nil
}

// insertJob stores a copy of j. Callers hold m.mu.
func (m *Store) insertJob(j *job.Job) {
	key := j.ID.String()
	m.jobs[key] = j.Clone()
	gkey := j.GraphID.String()
	m.graphJobs[gkey] = append(m.graphJobs[gkey], key)
}

// ──────────────────────────────────────────────────
// Artifact Store
// ──────────────────────────────────────────────────

// CreateArtifact persists a new artifact.
func (m *Store) CreateArtifact(_ context.Context, a *artifact.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.ID.String()
	if _, exists := m.artifacts[key]; exists {
		return jobgraph.ErrArtifactAlreadyExists
	}
	m.artifacts[key] = cloneArtifact(a)
	return nil
}

// GetArtifact retrieves an artifact by ID.
func (m *Store) GetArtifact(_ context.Context, artifactID id.ArtifactID) (*artifact.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.artifacts[artifactID.String()]
	if !ok {
		return nil, jobgraph.ErrArtifactNotFound
	}
	return cloneArtifact(a), nil
}

// UpdateArtifact persists changes to an existing artifact.
func (m *Store) UpdateArtifact(_ context.Context, a *artifact.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.ID.String()
	if _, ok := m.artifacts[key]; !ok {
		return jobgraph.ErrArtifactNotFound
	}
	m.artifacts[key] = cloneArtifact(a)
	return nil
}

// DeleteArtifact removes an artifact.
func (m *Store) DeleteArtifact(_ context.Context, artifactID id.ArtifactID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.artifacts, artifactID.String())
	return nil
}

func cloneArtifact(a *artifact.Artifact) *artifact.Artifact {
	cp := *a
	if a.SealedAt != nil {
		t := *a.SealedAt
		cp.SealedAt = &t
	}
	return &cp
}
