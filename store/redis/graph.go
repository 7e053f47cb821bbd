package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// CreateGraph stores the graph and indexes it under its state.
func (s *Store) CreateGraph(ctx context.Context, g *job.Graph) error {
	gID := g.ID.String()
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("jobgraph/redis: marshal graph: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.keys.graph(gID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("jobgraph/redis: create graph: %w", err)
	}
	if !ok {
		return jobgraph.ErrGraphAlreadyExists
	}

	if err := s.client.ZAdd(ctx, s.keys.graphsIn(g.State), goredis.Z{
		Score:  float64(g.CreatedAt.UnixNano()),
		Member: gID,
	}).Err(); err != nil {
		return fmt.Errorf("jobgraph/redis: index graph: %w", err)
	}
	return nil
}

// GetGraph retrieves a graph by ID.
func (s *Store) GetGraph(ctx context.Context, graphID id.GraphID) (*job.Graph, error) {
	return s.getGraph(ctx, graphID.String())
}

func (s *Store) getGraph(ctx context.Context, gID string) (*job.Graph, error) {
	data, err := s.client.Get(ctx, s.keys.graph(gID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, jobgraph.ErrGraphNotFound
		}
		return nil, fmt.Errorf("jobgraph/redis: get graph: %w", err)
	}
	var g job.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("jobgraph/redis: unmarshal graph: %w", err)
	}
	return &g, nil
}

// UpdateGraph persists changes and moves the graph between state indexes.
func (s *Store) UpdateGraph(ctx context.Context, g *job.Graph) error {
	gID := g.ID.String()
	old, err := s.getGraph(ctx, gID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("jobgraph/redis: marshal graph: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keys.graph(gID), data, 0)
	if old.State != g.State {
		pipe.ZRem(ctx, s.keys.graphsIn(old.State), gID)
		pipe.ZAdd(ctx, s.keys.graphsIn(g.State), goredis.Z{
			Score:  float64(old.CreatedAt.UnixNano()),
			Member: gID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobgraph/redis: update graph: %w", err)
	}
	return nil
}

// ListGraphs returns graphs in the given state, oldest first.
func (s *Store) ListGraphs(ctx context.Context, state job.GraphState) ([]*job.Graph, error) {
	ids, err := s.client.ZRange(ctx, s.keys.graphsIn(state), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobgraph/redis: list graphs: %w", err)
	}
	graphs := make([]*job.Graph, 0, len(ids))
	for _, gID := range ids {
		g, getErr := s.getGraph(ctx, gID)
		if getErr != nil {
			if errors.Is(getErr, jobgraph.ErrGraphNotFound) {
				continue
			}
			return nil, getErr
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
