package artifact

import (
	"context"

	"github.com/xraph/jobgraph/id"
)

// Store persists artifact metadata.
type Store interface {
	// CreateArtifact persists a new artifact. Returns
	// jobgraph.ErrArtifactAlreadyExists if the ID is taken.
	CreateArtifact(ctx context.Context, a *Artifact) error

	// GetArtifact retrieves an artifact by ID.
	GetArtifact(ctx context.Context, artifactID id.ArtifactID) (*Artifact, error)

	// UpdateArtifact persists changes to an existing artifact.
	UpdateArtifact(ctx context.Context, a *Artifact) error

	// DeleteArtifact removes an artifact's metadata. Deleting a missing
	// artifact is not an error.
	DeleteArtifact(ctx context.Context, artifactID id.ArtifactID) error
}
