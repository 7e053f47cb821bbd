package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
)

// CreateArtifact persists a new artifact.
func (s *Store) CreateArtifact(ctx context.Context, a *artifact.Artifact) error {
	if _, err := s.db.NewInsert().Model(toArtifactModel(a)).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return jobgraph.ErrArtifactAlreadyExists
		}
		return fmt.Errorf("jobgraph/bun: create artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID.
func (s *Store) GetArtifact(ctx context.Context, artifactID id.ArtifactID) (*artifact.Artifact, error) {
	m := new(artifactModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", artifactID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobgraph.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("jobgraph/bun: get artifact: %w", err)
	}
	a, err := fromArtifactModel(m)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/bun: %w", err)
	}
	return a, nil
}

// UpdateArtifact persists changes to an existing artifact.
func (s *Store) UpdateArtifact(ctx context.Context, a *artifact.Artifact) error {
	m := toArtifactModel(a)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).
		Column("state", "version", "digest", "size", "backend_key", "sealed_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobgraph/bun: update artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobgraph.ErrArtifactNotFound
	}
	return nil
}

// DeleteArtifact removes an artifact row.
func (s *Store) DeleteArtifact(ctx context.Context, artifactID id.ArtifactID) error {
	_, err := s.db.NewDelete().Model((*artifactModel)(nil)).
		Where("id = ?", artifactID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobgraph/bun: delete artifact: %w", err)
	}
	return nil
}
