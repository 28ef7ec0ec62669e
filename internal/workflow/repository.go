package workflow

import "context"

// ListFilter narrows List results. Nil fields match everything.
type ListFilter struct {
	Enabled *bool
}

// Repository defines the interface for workflow persistence. A workflow
// round-trips with its full graph: Save replaces all nodes and edges in
// one transaction, Get and List return them loaded.
type Repository interface {
	// Save persists the workflow, replacing its entire node and edge
	// set. Callers validate before saving.
	Save(ctx context.Context, w *Workflow) error

	// Get returns the workflow with its graph loaded. Returns
	// *NotFoundError if no such workflow exists.
	Get(ctx context.Context, id string) (*Workflow, error)

	// GetByName returns the workflow with the given name. Returns
	// *NotFoundError if no such workflow exists.
	GetByName(ctx context.Context, name string) (*Workflow, error)

	// List returns workflows matching the filter, graphs loaded,
	// ordered by creation time.
	List(ctx context.Context, filter ListFilter) ([]*Workflow, error)

	// Delete removes the workflow and its graph. Returns
	// *NotFoundError if no such workflow exists.
	Delete(ctx context.Context, id string) error

	// SetEnabled flips the enabled flag. Returns *NotFoundError if no
	// such workflow exists.
	SetEnabled(ctx context.Context, id string, enabled bool) error
}
