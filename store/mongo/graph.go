package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// CreateGraph persists a new graph.
func (s *Store) CreateGraph(ctx context.Context, g *job.Graph) error {
	if _, err := s.db.Collection(colGraphs).InsertOne(ctx, toGraphModel(g)); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return jobgraph.ErrGraphAlreadyExists
		}
		return fmt.Errorf("jobgraph/mongo: create graph: %w", err)
	}
	return nil
}

// GetGraph retrieves a graph by ID.
func (s *Store) GetGraph(ctx context.Context, graphID id.GraphID) (*job.Graph, error) {
	var m graphModel
	err := s.db.Collection(colGraphs).FindOne(ctx, bson.M{"_id": graphID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobgraph.ErrGraphNotFound
		}
		return nil, fmt.Errorf("jobgraph/mongo: get graph: %w", err)
	}
	g, err := fromGraphModel(&m)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: %w", err)
	}
	return g, nil
}

// UpdateGraph persists changes to an existing graph.
func (s *Store) UpdateGraph(ctx context.Context, g *job.Graph) error {
	m := toGraphModel(g)
	res, err := s.db.Collection(colGraphs).UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"name":         m.Name,
			"root_id":      m.RootID,
			"state":        m.State,
			"completed_at": m.CompletedAt,
			"updated_at":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("jobgraph/mongo: update graph: %w", err)
	}
	if res.MatchedCount == 0 {
		return jobgraph.ErrGraphNotFound
	}
	return nil
}

// ListGraphs returns graphs in the given state, oldest first.
func (s *Store) ListGraphs(ctx context.Context, state job.GraphState) ([]*job.Graph, error) {
	cur, err := s.db.Collection(colGraphs).Find(ctx,
		bson.M{"state": string(state)},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: list graphs: %w", err)
	}

	var models []graphModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("jobgraph/mongo: decode graphs: %w", err)
	}

	graphs := make([]*job.Graph, 0, len(models))
	for i := range models {
		g, convErr := fromGraphModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("jobgraph/mongo: %w", convErr)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
