package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/store"
)

// Collection name constants.
const (
	colGraphs    = "jobgraph_graphs"
	colJobs      = "jobgraph_jobs"
	colArtifacts = "jobgraph_artifacts"
	colCounters  = "jobgraph_counters"
)

// DefaultDatabase is used when the connection string names no database
// and WithDatabase is not given.
const DefaultDatabase = "jobgraph"

// Ensure Store implements the composite store interface at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	client *mongod.Client
	db     *mongod.Database
	logger *slog.Logger

	dbName string
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

// WithDatabase selects the database holding the collections.
func WithDatabase(name string) Option {
	return func(s *Store) {
		s.dbName = name
	}
}

// New connects to uri. The Store owns the client and disconnects it on
// Close.
func New(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	if uri == "" {
		return nil, &jobgraph.ConfigError{Field: "store.url", Err: errors.New("jobgraph/mongo: empty uri")}
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: connect: %w", err)
	}

	s := NewFromClient(client, opts...)
	s.owned = true
	return s, nil
}

// NewFromClient wraps an existing client. The caller owns the client
// lifecycle; Close does not disconnect it.
func NewFromClient(client *mongod.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		dbName: DefaultDatabase,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.db = client.Database(s.dbName)
	return s
}

// Client returns the underlying client for advanced usage.
func (s *Store) Client() *mongod.Client {
	return s.client
}

// Migrate creates the indexes of every collection. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s indexes: %w", jobgraph.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client when the Store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ── helpers ──────────────────────────────────────────────────────

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// nextSeq returns the next value of the named counter.
func (s *Store) nextSeq(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("jobgraph/mongo: next %s sequence: %w", name, err)
	}
	return doc.Seq, nil
}

// migrationIndexes returns the index definitions for every collection.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colGraphs: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colJobs: {
			// Creation order within a graph.
			{
				Keys:    bson.D{{Key: "graph_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colArtifacts: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
	}
}
