// Package localfs stores artifact bytes in a directory on local or shared
// disk.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xraph/jobgraph/artifact"
)

var _ artifact.Backend = (*Backend)(nil)

// Backend keeps one file per content key under Root.
type Backend struct {
	root string
}

// New returns a backend rooted at root, creating it if needed.
func New(root string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: create root: %w", err)
	}
	return &Backend{root: root}, nil
}

// Root returns the backend directory.
func (b *Backend) Root() string { return b.root }

// Put copies localPath into the backend.
func (b *Backend) Put(_ context.Context, key, localPath string) error {
	return artifact.CopyFile(localPath, b.path(key))
}

// Fetch copies key out of the backend into localPath.
func (b *Backend) Fetch(_ context.Context, key, localPath string) error {
	src := b.path(key)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("localfs: %s: %w", key, err)
	}
	return artifact.CopyFile(src, localPath)
}

// Exists reports whether key is stored.
func (b *Backend) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete removes key.
func (b *Backend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}
