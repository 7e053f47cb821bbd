package jobgraph

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("jobgraph: no store configured")
	ErrStoreClosed     = errors.New("jobgraph: store closed")
	ErrMigrationFailed = errors.New("jobgraph: migration failed")

	// Not found errors.
	ErrJobNotFound      = errors.New("jobgraph: job not found")
	ErrGraphNotFound    = errors.New("jobgraph: graph not found")
	ErrArtifactNotFound = errors.New("jobgraph: artifact not found")

	// Conflict errors.
	ErrJobAlreadyExists      = errors.New("jobgraph: job already exists")
	ErrGraphAlreadyExists    = errors.New("jobgraph: graph already exists")
	ErrArtifactAlreadyExists = errors.New("jobgraph: artifact already exists")

	// Job graph errors.
	ErrInvalidState    = errors.New("jobgraph: invalid state transition")
	ErrUnknownJob      = errors.New("jobgraph: no handler registered for job")
	ErrFollowOnExists  = errors.New("jobgraph: follow-on already declared")
	ErrInputsNotSealed = errors.New("jobgraph: job inputs were never sealed")
	ErrGraphCancelled  = errors.New("jobgraph: graph cancelled")
	ErrGraphRunning    = errors.New("jobgraph: graph is already running")
	ErrNotStarted      = errors.New("jobgraph: engine not started")

	// Artifact errors.
	ErrAlreadySealed = errors.New("jobgraph: artifact already sealed")
	ErrNotSealed     = errors.New("jobgraph: artifact not sealed")
	ErrEmptyArtifact = errors.New("jobgraph: artifact content is empty")
)
