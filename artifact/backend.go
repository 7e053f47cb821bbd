package artifact

import "context"

// Backend stores artifact bytes under content keys. The manager never
// assumes a specific technology; it only needs these four operations.
type Backend interface {
	// Put uploads the file at localPath under key.
	Put(ctx context.Context, key, localPath string) error

	// Fetch downloads key into localPath, creating or truncating it.
	Fetch(ctx context.Context, key, localPath string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
