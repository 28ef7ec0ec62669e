package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/workflow"
)

// workflowRepository implements workflow.Repository using Postgres.
type workflowRepository struct {
	db *bun.DB
}

func newWorkflowRepository(db *bun.DB) *workflowRepository {
	return &workflowRepository{db: db}
}

// Ensure workflowRepository implements workflow.Repository.
var _ workflow.Repository = (*workflowRepository)(nil)

// Save persists the workflow and replaces its entire graph in one
// transaction: delete edges, delete nodes, insert nodes, insert edges.
// Readers see either the old graph or the new one, never a mix.
func (r *workflowRepository) Save(ctx context.Context, w *workflow.Workflow) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := toWorkflowModel(w)
		if _, err := tx.NewInsert().Model(m).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("description = EXCLUDED.description").
			Set("enabled = EXCLUDED.enabled").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert workflow: %w", err)
		}

		// Edges drop before nodes and insert after them, honoring the FKs.
		if _, err := tx.NewDelete().Model((*edgeModel)(nil)).
			Where("workflow_id = ?", w.ID).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete workflow edges: %w", err)
		}
		if _, err := tx.NewDelete().Model((*nodeModel)(nil)).
			Where("workflow_id = ?", w.ID).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete workflow nodes: %w", err)
		}

		for i := range w.Nodes {
			nm, err := toNodeModel(w.ID, &w.Nodes[i])
			if err != nil {
				return err
			}
			if _, err := tx.NewInsert().Model(nm).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert node %s: %w", nm.ID, err)
			}
		}
		for i := range w.Edges {
			em := toEdgeModel(w.ID, &w.Edges[i])
			if _, err := tx.NewInsert().Model(em).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert edge %s: %w", em.ID, err)
			}
		}
		return nil
	})
}

// Get retrieves a workflow with its full graph loaded.
func (r *workflowRepository) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	m := new(workflowModel)
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
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
	m := new(workflowModel)
	err := r.db.NewSelect().Model(m).Where("name = ?", name).Scan(ctx)
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
	var ms []*workflowModel
	q := r.db.NewSelect().Model(&ms)
	if filter.Enabled != nil {
		q = q.Where("enabled = ?", *filter.Enabled)
	}
	if err := q.Order("created_at", "id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var out []*workflow.Workflow
	for _, m := range ms {
		w := m.toDomain()
		if err := r.loadGraph(ctx, w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Delete removes the workflow; nodes, edges, and enrollments cascade.
func (r *workflowRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*workflowModel)(nil)).
		Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &workflow.NotFoundError{ID: id}
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (r *workflowRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.NewUpdate().Model((*workflowModel)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update workflow enabled flag: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &workflow.NotFoundError{ID: id}
	}
	return nil
}

// loadGraph fills in the workflow's nodes and edges in insertion order.
func (r *workflowRepository) loadGraph(ctx context.Context, w *workflow.Workflow) error {
	var nms []*nodeModel
	if err := r.db.NewSelect().Model(&nms).
		Where("workflow_id = ?", w.ID).
		OrderExpr("seq").
		Scan(ctx); err != nil {
		return fmt.Errorf("failed to load workflow nodes: %w", err)
	}
	for _, nm := range nms {
		n, err := nm.toDomain()
		if err != nil {
			return err
		}
		w.Nodes = append(w.Nodes, n)
	}

	var ems []*edgeModel
	if err := r.db.NewSelect().Model(&ems).
		Where("workflow_id = ?", w.ID).
		OrderExpr("seq").
		Scan(ctx); err != nil {
		return fmt.Errorf("failed to load workflow edges: %w", err)
	}
	for _, em := range ems {
		w.Edges = append(w.Edges, em.toDomain())
	}
	return nil
}
