package redis

import (
	"context"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobgraph/store"
)

var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix namespaces keys under prefix instead of
// DefaultKeyPrefix, so several deployments can share one Redis.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.TrimSuffix(prefix, ":"); p != "" {
			s.keys = keyspace(p)
		}
	}
}

// Store keeps graphs, jobs and artifacts as JSON values in Redis. Job
// commits run as one Lua script.
type Store struct {
	client goredis.Cmdable
	keys   keyspace
	logger *slog.Logger
}

// New returns a Store on client. The caller owns the client and closes
// it; Close on the Store does nothing.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, keys: DefaultKeyPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate does nothing; Redis has no schema.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close does nothing; see New.
func (s *Store) Close() error { return nil }
