package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

const graphColumns = `id, name, root_id, state, completed_at, created_at, updated_at`

// CreateGraph persists a new graph.
func (s *Store) CreateGraph(ctx context.Context, g *job.Graph) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobgraph_graphs (`+graphColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID.String(), g.Name, g.RootID.String(), string(g.State),
		g.CompletedAt, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobgraph.ErrGraphAlreadyExists
		}
		return fmt.Errorf("jobgraph/postgres: create graph: %w", err)
	}
	return nil
}

// GetGraph retrieves a graph by ID.
func (s *Store) GetGraph(ctx context.Context, graphID id.GraphID) (*job.Graph, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+graphColumns+` FROM jobgraph_graphs WHERE id = $1`,
		graphID.String(),
	)
	g, err := scanGraph(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobgraph.ErrGraphNotFound
		}
		return nil, fmt.Errorf("jobgraph/postgres: get graph: %w", err)
	}
	return g, nil
}

// UpdateGraph persists changes to an existing graph.
func (s *Store) UpdateGraph(ctx context.Context, g *job.Graph) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobgraph_graphs SET
			name = $2, root_id = $3, state = $4, completed_at = $5,
			updated_at = NOW()
		WHERE id = $1`,
		g.ID.String(), g.Name, g.RootID.String(), string(g.State), g.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("jobgraph/postgres: update graph: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobgraph.ErrGraphNotFound
	}
	return nil
}

// ListGraphs returns graphs in the given state, oldest first.
func (s *Store) ListGraphs(ctx context.Context, state job.GraphState) ([]*job.Graph, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+graphColumns+` FROM jobgraph_graphs
		WHERE state = $1
		ORDER BY created_at ASC, id ASC`,
		string(state),
	)
	if err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: list graphs: %w", err)
	}
	defer rows.Close()

	var graphs []*job.Graph
	for rows.Next() {
		g, scanErr := scanGraph(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobgraph/postgres: scan graph row: %w", scanErr)
		}
		graphs = append(graphs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: iterate graph rows: %w", err)
	}
	return graphs, nil
}

func scanGraph(row pgx.Row) (*job.Graph, error) {
	var (
		g        job.Graph
		idStr    string
		rootStr  string
		stateStr string
	)
	err := row.Scan(
		&idStr, &g.Name, &rootStr, &stateStr,
		&g.CompletedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.State = job.GraphState(stateStr)

	if g.ID, err = id.ParseGraphID(idStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse graph id %q: %w", idStr, err)
	}
	if g.RootID, err = id.ParseJobID(rootStr); err != nil {
		return nil, fmt.Errorf("jobgraph/postgres: parse root id %q: %w", rootStr, err)
	}
	return &g, nil
}
