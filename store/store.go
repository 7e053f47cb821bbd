package store

import (
	"context"

	"github.com/xraph/jobgraph/artifact"
	"github.com/xraph/jobgraph/job"
)

// Store is everything the engine persists: graphs, jobs and artifact
// records, behind one backend so a job commit can cover all of them.
type Store interface {
	job.Store
	artifact.Store

	// Migrate brings the backend schema up to date. It is idempotent.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Driver names a backend as it appears in configuration.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	// DriverBun is PostgreSQL through the bun ORM, on the postgres schema.
	DriverBun   Driver = "bun"
	DriverMongo Driver = "mongo"
	DriverRedis Driver = "redis"
)

// Drivers lists every backend in the order the CLI documents them.
func Drivers() []Driver {
	return []Driver{DriverMemory, DriverPostgres, DriverBun, DriverMongo, DriverRedis}
}

// Durable reports whether d keeps state across processes, which is what
// resuming a graph needs.
func (d Driver) Durable() bool {
	return d != DriverMemory && d != ""
}
