package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
)

const artifactColumns = `id, owner, state, version, digest, size, backend_key, sealed_at, created_at, updated_at`

// CreateArtifact persists a new artifact.
func (s *Store) CreateArtifact(ctx context.Context, a *artifact.Artifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobgraph_artifacts (`+artifactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID.String(), a.Owner.String(), string(a.State), a.Version,
		a.Digest, a.Size, a.BackendKey, a.SealedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobgraph.ErrArtifactAlreadyExists
		}
		return fmt.Errorf("jobgraph/postgres: create artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID.
func (s *Store) GetArtifact(ctx context.Context, artifactID id.ArtifactID) (*artifact.Artifact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM jobgraph_artifacts WHERE id = $1`,
		artifactID.String(),
	)
	a, err := scanArtifact(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobgraph.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("jobgraph/postgres: get artifact: %w", err)
	}
	return a, nil
}

// UpdateArtifact persists changes to an existing artifact.
func (s *Store) UpdateArtifact(ctx context.Context, a *artifact.Artifact) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobgraph_artifacts SET
			owner = $2, state = $3, version = $4, digest = $5,
			size = $6, backend_key = $7, sealed_at = $8,
			updated_at = NOW()
		WHERE id = $1`,
		a.ID.String(), a.Owner.String(), string(a.State), a.Version,
		a.Digest, a.Size, a.BackendKey, a.SealedAt,
	)
	if err != nil {
		return fmt.Errorf("jobgraph/postgres: update artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobgraph.ErrArtifactNotFound
	}
	return nil
}

// DeleteArtifact removes an artifact row.
func (s *Store) DeleteArtifact(ctx context.Context, artifactID id.ArtifactID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobgraph_artifacts WHERE id = $1`, artifactID.String()); err != nil {
		return fmt.Errorf("jobgraph/postgres: delete artifact: %w", err)
	}
	return nil
}

func scanArtifact(row pgx.Row) (*artifact.Artifact, error) {
	var (
		a        artifact.Artifact
		idStr    string
		ownerStr string
		stateStr string
	)
	err := row.Scan(
		&idStr, &ownerStr, &stateStr, &a.Version,
		&a.Digest, &a.Size, &a.BackendKey, &a.SealedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.State = artifact.State(stateStr)

	if a.ID, err = id.ParseArtifactID(idStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse artifact id %q: %w", idStr, err)
	}
	if a.Owner, err = id.ParseJobID(ownerStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse owner id %q: %w", ownerStr, err)
	}
	return &a, nil
}
