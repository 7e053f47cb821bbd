package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
)

// CreateArtifact stores a new artifact.
func (s *Store) CreateArtifact(ctx context.Context, a *artifact.Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("jobgraph/redis: marshal artifact: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.keys.artifact(a.ID.String()), data, 0).Result()
	if err != nil {
		return fmt.Errorf("jobgraph/redis: create artifact: %w", err)
	}
	if !ok {
		return jobgraph.ErrArtifactAlreadyExists
	}
	return nil
}

// GetArtifact retrieves an artifact by ID.
func (s *Store) GetArtifact(ctx context.Context, artifactID id.ArtifactID) (*artifact.Artifact, error) {
	data, err := s.client.Get(ctx, s.keys.artifact(artifactID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, jobgraph.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("jobgraph/redis: get artifact: %w", err)
	}
	var a artifact.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("jobgraph/redis: unmarshal artifact: %w", err)
	}
	return &a, nil
}

// UpdateArtifact persists changes to an existing artifact.
func (s *Store) UpdateArtifact(ctx context.Context, a *artifact.Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("jobgraph/redis: marshal artifact: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.keys.artifact(a.ID.String()), data, 0).Result()
	if err != nil {
		return fmt.Errorf("jobgraph/redis: update artifact: %w", err)
	}
	if !ok {
		return jobgraph.ErrArtifactNotFound
	}
	return nil
}

// DeleteArtifact removes an artifact key.
func (s *Store) DeleteArtifact(ctx context.Context, artifactID id.ArtifactID) error {
	if err := s.client.Del(ctx, s.keys.artifact(artifactID.String())).Err(); err != nil {
		return fmt.Errorf("jobgraph/redis: delete artifact: %w", err)
	}
	return nil
}
