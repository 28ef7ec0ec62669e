package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/followup/internal/workflow"
)

// workflowColumns is the list of columns to select for workflow queries.
const workflowColumns = `id, name, description, enabled, created_at, updated_at`

// workflowRepository implements workflow.Repository using SQLite.
type workflowRepository struct {
	db *sql.DB
}

func newWorkflowRepository(db *sql.DB) *workflowRepository {
	return &workflowRepository{db: db}
}

// Ensure workflowRepository implements workflow.Repository.
var _ workflow.Repository = (*workflowRepository)(nil)

func scanWorkflow(scanner interface{ Scan(...any) error }) (*workflowModel, error) {
	var m workflowModel
	err := scanner.Scan(&m.ID, &m.Name, &m.Description, &m.Enabled, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

// Save persists the workflow and replaces its entire graph in one
// transaction: delete edges, delete nodes, insert nodes, insert edges.
// Readers see either the old graph or the new one, never a mix.
func (r *workflowRepository) Save(ctx context.Context, w *workflow.Workflow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := toWorkflowModel(w)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		m.ID, m.Name, m.Description, m.Enabled, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert workflow: %w", err)
	}

	// Edges drop before nodes and insert after them, honoring the FKs.
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_edges WHERE workflow_id = ?`, w.ID); err != nil {
		return fmt.Errorf("failed to delete workflow edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = ?`, w.ID); err != nil {
		return fmt.Errorf("failed to delete workflow nodes: %w", err)
	}

	for i := range w.Nodes {
		nm, err := toNodeModel(w.ID, &w.Nodes[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_nodes (workflow_id, id, type, position_x, position_y, data)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			nm.WorkflowID, nm.ID, nm.Type, nm.PositionX, nm.PositionY, nm.Data,
		); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", nm.ID, err)
		}
	}
	for i := range w.Edges {
		e := &w.Edges[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_edges (workflow_id, id, source_id, target_id, source_handle, label)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			w.ID, e.ID, e.SourceID, e.TargetID, e.SourceHandle, e.Label,
		); err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}
	return nil
}

// Get retrieves a workflow with its full graph loaded.
func (r *workflowRepository) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	m, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &workflow.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	w := m.toDomain()
	if err := r.loadGraph(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetByName retrieves a workflow by its unique name.
func (r *workflowRepository) GetByName(ctx context.Context, name string) (*workflow.Workflow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name)
	m, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &workflow.NotFoundError{ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow by name: %w", err)
	}
	w := m.toDomain()
	if err := r.loadGraph(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// List retrieves workflows matching the filter, graphs loaded, oldest
// first.
func (r *workflowRepository) List(ctx context.Context, filter workflow.ListFilter) ([]*workflow.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	var args []any
	if filter.Enabled != nil {
		query += ` WHERE enabled = ?`
		args = append(args, *filter.Enabled)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*workflow.Workflow
	for rows.Next() {
		m, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}

	for _, w := range out {
		if err := r.loadGraph(ctx, w); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes the workflow; nodes, edges, and enrollments cascade.
func (r *workflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &workflow.NotFoundError{ID: id}
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (r *workflowRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow enabled flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &workflow.NotFoundError{ID: id}
	}
	return nil
}

// loadGraph fills in the workflow's nodes and edges.
func (r *workflowRepository) loadGraph(ctx context.Context, w *workflow.Workflow) error {
	nodeRows, err := r.db.QueryContext(ctx,
		`SELECT workflow_id, id, type, position_x, position_y, data
		 FROM workflow_nodes WHERE workflow_id = ? ORDER BY rowid`, w.ID)
	if err != nil {
		return fmt.Errorf("failed to load workflow nodes: %w", err)
	}
	defer func() { _ = nodeRows.Close() }()

	for nodeRows.Next() {
		var nm nodeModel
		if err := nodeRows.Scan(&nm.WorkflowID, &nm.ID, &nm.Type, &nm.PositionX, &nm.PositionY, &nm.Data); err != nil {
			return fmt.Errorf("failed to scan node row: %w", err)
		}
		n, err := nm.toDomain()
		if err != nil {
			return err
		}
		w.Nodes = append(w.Nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("error iterating node rows: %w", err)
	}

	edgeRows, err := r.db.QueryContext(ctx,
		`SELECT id, source_id, target_id, source_handle, label
		 FROM workflow_edges WHERE workflow_id = ? ORDER BY rowid`, w.ID)
	if err != nil {
		return fmt.Errorf("failed to load workflow edges: %w", err)
	}
	defer func() { _ = edgeRows.Close() }()

	for edgeRows.Next() {
		e := workflow.Edge{WorkflowID: w.ID}
		if err := edgeRows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.SourceHandle, &e.Label); err != nil {
			return fmt.Errorf("failed to scan edge row: %w", err)
		}
		w.Edges = append(w.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return fmt.Errorf("error iterating edge rows: %w", err)
	}
	return nil
}
