package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// Compile-time check: the manager backs job.Context file operations.
var _ job.Files = (*Manager)(nil)

var errDigestMismatch = errors.New("artifact: fetched content does not match digest")

// Observer is notified after an artifact is sealed or updated.
type Observer func(ctx context.Context, a *Artifact)

// Manager coordinates artifact metadata, backend bytes and the node-local
// cache. It is safe for concurrent use by many jobs.
type Manager struct {
	store    Store
	backend  Backend
	cacheDir string
	logger   *slog.Logger
	observer Observer

	fetches singleflight.Group
	locks   sync.Map // artifact ID string → *sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers a callback invoked after every seal or update.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// NewManager creates a manager. cacheDir holds node-local copies of
// fetched content and is created if missing.
func NewManager(store Store, backend Backend, cacheDir string, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, &jobgraph.ConfigError{Field: "artifact.store", Err: jobgraph.ErrNoStore}
	}
	if backend == nil {
		return nil, &jobgraph.ConfigError{Field: "artifact.backend", Err: errors.New("artifact: backend is required")}
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create cache dir: %w", err)
	}
	m := &Manager{
		store:    store,
		backend:  backend,
		cacheDir: cacheDir,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Reserve creates a new empty artifact owned by owner.
func (m *Manager) Reserve(ctx context.Context, owner id.JobID) (id.ArtifactID, error) {
	a := &Artifact{
		Entity: jobgraph.NewEntity(),
		ID:     id.NewArtifactID(),
		Owner:  owner,
		State:  StateReserved,
	}
	if err := m.store.CreateArtifact(ctx, a); err != nil {
		return id.Nil, fmt.Errorf("reserve artifact: %w", err)
	}
	return a.ID, nil
}

// Seal attaches the file at localPath to a reserved artifact. The
// artifact becomes version 1. Sealing twice fails with
// jobgraph.ErrAlreadySealed; use Update to replace content.
func (m *Manager) Seal(ctx context.Context, artifactID id.ArtifactID, owner id.JobID, localPath string) error {
	unlock := m.lock(artifactID)
	defer unlock()

	a, err := m.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("seal %s: %w", artifactID, err)
	}
	if a.Sealed() {
		return fmt.Errorf("seal %s: %w", artifactID, jobgraph.ErrAlreadySealed)
	}
	return m.attach(ctx, a, owner, localPath)
}

// Update replaces the content of an artifact and increments its version.
// Updating a reserved artifact behaves like Seal.
func (m *Manager) Update(ctx context.Context, artifactID id.ArtifactID, owner id.JobID, localPath string) error {
	unlock := m.lock(artifactID)
	defer unlock()

	a, err := m.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("update %s: %w", artifactID, err)
	}
	return m.attach(ctx, a, owner, localPath)
}

func (m *Manager) attach(ctx context.Context, a *Artifact, owner id.JobID, localPath string) error {
	if !isRegularFile(localPath) {
		return fmt.Errorf("seal %s from %s: %w", a.ID, localPath, jobgraph.ErrEmptyArtifact)
	}

	digest, size, err := Digest(localPath)
	if err != nil {
		return err
	}
	key := ContentKey(digest)

	exists, err := m.backend.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("artifact backend exists %s: %w", key, err)
	}
	if !exists {
		if err := m.backend.Put(ctx, key, localPath); err != nil {
			return fmt.Errorf("artifact backend put %s: %w", key, err)
		}
	}

	// Prime the local cache so readers on this node skip the backend.
	if cached := m.cachePath(digest); !isRegularFile(cached) {
		if err := CopyFile(localPath, cached); err != nil {
			m.logger.Warn("artifact cache prime failed",
				slog.String("digest", digest),
				slog.String("error", err.Error()),
			)
		}
	}

	a.Touch()
	now := a.UpdatedAt
	a.Owner = owner
	a.State = StateSealed
	a.Version++
	a.Digest = digest
	a.Size = size
	a.BackendKey = key
	a.SealedAt = &now

	if err := m.store.UpdateArtifact(ctx, a); err != nil {
		return fmt.Errorf("persist artifact %s: %w", a.ID, err)
	}

	m.logger.Debug("artifact sealed",
		slog.String("artifact_id", a.ID.String()),
		slog.Int("version", a.Version),
		slog.Int64("size", size),
	)
	if m.observer != nil {
		m.observer(ctx, a)
	}
	return nil
}

// Materialize places a private copy of a sealed artifact at dest and
// returns dest. If dest already holds a regular file it is returned as-is.
// Concurrent calls for the same content share a single backend fetch.
func (m *Manager) Materialize(ctx context.Context, artifactID id.ArtifactID, dest string) (string, error) {
	if isRegularFile(dest) {
		return dest, nil
	}

	a, err := m.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return "", fmt.Errorf("materialize %s: %w", artifactID, err)
	}
	if !a.Sealed() {
		return "", fmt.Errorf("materialize %s: %w", artifactID, jobgraph.ErrNotSealed)
	}

	cached, err := m.ensureCached(ctx, a)
	if err != nil {
		return "", err
	}
	if err := CopyFile(cached, dest); err != nil {
		return "", fmt.Errorf("materialize %s: %w", artifactID, err)
	}
	return dest, nil
}

// ensureCached returns the local cache path for a's content, fetching it
// from the backend when absent. The fetch is shared by every caller
// waiting on the same digest and runs detached from their contexts; a
// caller that gives up returns its own context error and leaves the fetch
// to the others.
func (m *Manager) ensureCached(ctx context.Context, a *Artifact) (string, error) {
	path := m.cachePath(a.Digest)
	if isRegularFile(path) {
		return path, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := m.fetches.DoChan(a.Digest, func() (any, error) {
		return nil, m.fetch(fetchCtx, a, path)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("materialize %s: %w", a.ID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return path, nil
	}
}

// fetch downloads a's content into the cache at path, verifying the
// digest before the rename makes it visible.
func (m *Manager) fetch(ctx context.Context, a *Artifact, path string) error {
	if isRegularFile(path) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+a.Digest+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := m.backend.Fetch(ctx, a.BackendKey, tmpName); err != nil {
		return fmt.Errorf("artifact backend fetch %s: %w", a.BackendKey, err)
	}

	got, _, err := Digest(tmpName)
	if err != nil {
		return err
	}
	if got != a.Digest {
		return &jobgraph.TransferError{URL: a.BackendKey, Attempts: 1, Err: errDigestMismatch}
	}
	return os.Rename(tmpName, path)
}

// Discard removes the metadata of artifacts nothing will reference, such
// as those created by a failed attempt. Stored content is kept: it is
// content-addressed and may back other artifacts.
func (m *Manager) Discard(ctx context.Context, ids ...id.ArtifactID) error {
	var errs []error
	for _, artID := range ids {
		if err := m.store.DeleteArtifact(ctx, artID); err != nil {
			errs = append(errs, fmt.Errorf("discard %s: %w", artID, err))
		}
	}
	return errors.Join(errs...)
}

// Sealed reports whether every listed artifact is sealed.
func (m *Manager) Sealed(ctx context.Context, ids ...id.ArtifactID) (bool, error) {
	for _, artID := range ids {
		a, err := m.store.GetArtifact(ctx, artID)
		if err != nil {
			return false, err
		}
		if !a.Sealed() {
			return false, nil
		}
	}
	return true, nil
}

// Get returns the metadata of an artifact.
func (m *Manager) Get(ctx context.Context, artifactID id.ArtifactID) (*Artifact, error) {
	return m.store.GetArtifact(ctx, artifactID)
}

func (m *Manager) cachePath(digest string) string {
	return filepath.Join(m.cacheDir, filepath.FromSlash(ContentKey(digest)))
}

func (m *Manager) lock(artifactID id.ArtifactID) func() {
	v, _ := m.locks.LoadOrStore(artifactID.String(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
