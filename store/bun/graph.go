package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// CreateGraph persists a new graph.
func (s *Store) CreateGraph(ctx context.Context, g *job.Graph) error {
	if _, err := s.db.NewInsert().Model(toGraphModel(g)).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return jobgraph.ErrGraphAlreadyExists
		}
		return fmt.Errorf("jobgraph/bun: create graph: %w", err)
	}
	return nil
}

// GetGraph retrieves a graph by ID.
func (s *Store) GetGraph(ctx context.Context, graphID id.GraphID) (*job.Graph, error) {
	m := new(graphModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", graphID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobgraph.ErrGraphNotFound
		}
		return nil, fmt.Errorf("jobgraph/bun: get graph: %w", err)
	}
	g, err := fromGraphModel(m)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/bun: %w", err)
	}
	return g, nil
}

// UpdateGraph persists changes to an existing graph.
func (s *Store) UpdateGraph(ctx context.Context, g *job.Graph) error {
	m := toGraphModel(g)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).
		Column("name", "root_id", "state", "completed_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobgraph/bun: update graph: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobgraph.ErrGraphNotFound
	}
	return nil
}

// ListGraphs returns graphs in the given state, oldest first.
func (s *Store) ListGraphs(ctx context.Context, state job.GraphState) ([]*job.Graph, error) {
	var models []graphModel
	err := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state)).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/bun: list graphs: %w", err)
	}

	graphs := make([]*job.Graph, 0, len(models))
	for i := range models {
		g, convErr := fromGraphModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("jobgraph/bun: %w", convErr)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
