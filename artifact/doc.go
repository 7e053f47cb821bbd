// Package artifact implements the shared, content-addressed artifact store.
//
// An [Artifact] is a named blob identified by a global handle (an
// id.ArtifactID), never by a filesystem path. Its lifecycle is:
//
//	Reserve → (handle exists, empty)
//	Seal    → (content attached, version 1, exactly once)
//	Update  → (content replaced, version+1, last writer wins)
//
// Any number of jobs may [Manager.Materialize] a sealed artifact into
// their private working directories. Materialize never exposes the shared
// copy: it copies bytes out of a node-local cache, fetching from the
// [Backend] at most once per content digest.
//
// Metadata lives in a [Store] (memory, postgres, redis) so handles survive
// worker restarts; bytes live in a [Backend] (local disk or a remote
// rclone remote) keyed by their sha256 digest.
package artifact
