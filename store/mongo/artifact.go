package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/id"
)

// CreateArtifact persists a new artifact.
func (s *Store) CreateArtifact(ctx context.Context, a *artifact.Artifact) error {
	if _, err := s.db.Collection(colArtifacts).InsertOne(ctx, toArtifactModel(a)); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return jobgraph.ErrArtifactAlreadyExists
		}
		return fmt.Errorf("jobgraph/mongo: create artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID.
func (s *Store) GetArtifact(ctx context.Context, artifactID id.ArtifactID) (*artifact.Artifact, error) {
	var m artifactModel
	err := s.db.Collection(colArtifacts).FindOne(ctx, bson.M{"_id": artifactID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobgraph.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("jobgraph/mongo: get artifact: %w", err)
	}
	a, err := fromArtifactModel(&m)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: %w", err)
	}
	return a, nil
}

// UpdateArtifact persists changes to an existing artifact.
func (s *Store) UpdateArtifact(ctx context.Context, a *artifact.Artifact) error {
	m := toArtifactModel(a)
	res, err := s.db.Collection(colArtifacts).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("jobgraph/mongo: update artifact: %w", err)
	}
	if res.MatchedCount == 0 {
		return jobgraph.ErrArtifactNotFound
	}
	return nil
}

// DeleteArtifact removes an artifact document.
func (s *Store) DeleteArtifact(ctx context.Context, artifactID id.ArtifactID) error {
	if _, err := s.db.Collection(colArtifacts).DeleteOne(ctx, bson.M{"_id": artifactID.String()}); err != nil {
		return fmt.Errorf("jobgraph/mongo: delete artifact: %w", err)
	}
	return nil
}
