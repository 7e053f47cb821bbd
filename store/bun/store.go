package bunstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements the composite store interface at compile time.
var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using the PostgreSQL
// dialect.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
	owned  bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an existing *bun.DB. The caller owns the db lifecycle; the
// Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn through pgdriver. The Store owns the connection
// and closes it on Close.
func Open(dsn string, opts ...Option) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	s := New(bun.NewDB(sqldb, pgdialect.New()), opts...)
	s.owned = true
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// migrationLock matches the postgres store's advisory lock key, so the
// two drivers never apply the shared schema concurrently.
const migrationLock = 0x6a6f6267

// Migrate applies each embedded file not yet listed in
// jobgraph_migrations inside its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*migrationRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create migrations table: %w", jobgraph.ErrMigrationFailed, err)
	}

	names, err := migrationFiles()
	if err != nil {
		return fmt.Errorf("%w: %w", jobgraph.ErrMigrationFailed, err)
	}

	for _, name := range names {
		applied := false
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(?)`, migrationLock); err != nil {
				return fmt.Errorf("lock: %w", err)
			}
			done, err := tx.NewSelect().Model((*migrationRow)(nil)).Where("filename = ?", name).Exists(ctx)
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}
			if done {
				return nil
			}
			data, err := fs.ReadFile(migrationsFS, "migrations/"+name)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, string(data)); err != nil {
				return fmt.Errorf("execute: %w", err)
			}
			if _, err := tx.NewInsert().Model(&migrationRow{Filename: name}).Exec(ctx); err != nil {
				return fmt.Errorf("record: %w", err)
			}
			applied = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", jobgraph.ErrMigrationFailed, name, err)
		}
		if applied {
			s.logger.Info("applied migration", slog.String("file", name))
		}
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database when the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
