package enrollment

import (
	"context"
	"fmt"
	"time"
)

// NotFoundError indicates the requested enrollment does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("enrollment not found: %s", e.ID)
}

// ExecutionNotFoundError indicates the requested execution does not
// exist.
type ExecutionNotFoundError struct {
	ID string
}

func (e *ExecutionNotFoundError) Error() string {
	return fmt.Sprintf("execution not found: %s", e.ID)
}

// DuplicateActiveError indicates a second active enrollment was
// attempted for the same (workflow, contact) pair.
type DuplicateActiveError struct {
	WorkflowID string
	ContactID  string
}

func (e *DuplicateActiveError) Error() string {
	return fmt.Sprintf("contact %s already has an active enrollment in workflow %s", e.ContactID, e.WorkflowID)
}

// ListFilter narrows enrollment listings. Zero fields match everything.
type ListFilter struct {
	WorkflowID string
	ContactID  string
	Status     Status
}

// Repository defines the interface for enrollment persistence.
type Repository interface {
	// Create persists a new enrollment. Returns *DuplicateActiveError
	// if the (workflow, contact) pair already has an active one.
	Create(ctx context.Context, e *Enrollment) error

	// Get returns an enrollment by id. Returns *NotFoundError if no
	// such enrollment exists.
	Get(ctx context.Context, id string) (*Enrollment, error)

	// GetActive returns the active enrollment for the pair, or
	// *NotFoundError when none exists.
	GetActive(ctx context.Context, workflowID, contactID string) (*Enrollment, error)

	// List returns enrollments matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Enrollment, error)

	// Update persists status, stop reason, and timestamps.
	Update(ctx context.Context, e *Enrollment) error
}

// ExecutionRepository defines the interface for execution persistence.
// ClaimDue is the only concurrency-sensitive operation in the engine.
type ExecutionRepository interface {
	// Create persists a new execution.
	Create(ctx context.Context, x *Execution) error

	// Get returns an execution by id. Returns *ExecutionNotFoundError
	// if no such execution exists.
	Get(ctx context.Context, id string) (*Execution, error)

	// GetByEnrollment returns the execution belonging to an enrollment.
	GetByEnrollment(ctx context.Context, enrollmentID string) (*Execution, error)

	// Update persists cursor, status, schedule, attempts, error, data,
	// and lease fields.
	Update(ctx context.Context, x *Execution) error

	// ClaimDue atomically claims up to limit executions that are due
	// (waiting with next_run_at ≤ now) or abandoned (processing with an
	// expired lease), marking them processing with the given holder and
	// a lease expiring after leaseTTL. No execution is ever returned to
	// two concurrent callers.
	ClaimDue(ctx context.Context, now time.Time, limit int, holder string, leaseTTL time.Duration) ([]*Execution, error)

	// DueCount reports how many executions a ClaimDue at now could see.
	DueCount(ctx context.Context, now time.Time) (int, error)
}

// LogRepository defines the interface for the append-only execution
// log. There is deliberately no update or delete.
type LogRepository interface {
	// Append writes one log row.
	Append(ctx context.Context, l *ExecutionLog) error

	// ListByExecution returns an execution's logs in append order.
	ListByExecution(ctx context.Context, executionID string) ([]*ExecutionLog, error)

	// ListByEnrollment returns an enrollment's logs in append order.
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]*ExecutionLog, error)
}
