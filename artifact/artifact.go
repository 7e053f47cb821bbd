package artifact

import (
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
)

// State is the lifecycle state of an artifact.
type State string

const (
	// StateReserved means the handle exists but no content is attached.
	StateReserved State = "reserved"
	// StateSealed means content is attached and readable.
	StateSealed State = "sealed"
)

// Artifact is the metadata of one blob in the store.
type Artifact struct {
	jobgraph.Entity

	ID         id.ArtifactID `json:"id"`
	Owner      id.JobID      `json:"owner"`
	State      State         `json:"state"`
	Version    int           `json:"version"`
	Digest     string        `json:"digest,omitempty"`
	Size       int64         `json:"size"`
	BackendKey string        `json:"backend_key,omitempty"`
	SealedAt   *time.Time    `json:"sealed_at,omitempty"`
}

// Sealed reports whether content is attached.
func (a *Artifact) Sealed() bool { return a.State == StateSealed }
