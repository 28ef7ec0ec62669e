package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/enrollment"
)

// executionColumns is the list of columns returned by the claim query.
const executionColumns = `id, enrollment_id, current_node_id, status, next_run_at, last_run_at,
	attempts, max_attempts, error_message, execution_data, lease_holder, lease_expires_at,
	created_at, updated_at`

// dueWhere is the predicate shared by ClaimDue and DueCount: waiting
// rows whose schedule has arrived, plus processing rows whose lease
// has expired (abandoned by a crashed worker).
const dueWhere = `(status = 'waiting' AND next_run_at IS NOT NULL AND next_run_at <= ?)
	   OR (status = 'processing' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)`

// executionRepository implements enrollment.ExecutionRepository using
// Postgres.
type executionRepository struct {
	db *bun.DB
}

func newExecutionRepository(db *bun.DB) *executionRepository {
	return &executionRepository{db: db}
}

// Ensure executionRepository implements enrollment.ExecutionRepository.
var _ enrollment.ExecutionRepository = (*executionRepository)(nil)

// Create persists a new execution.
func (r *executionRepository) Create(ctx context.Context, x *enrollment.Execution) error {
	m, err := toExecutionModel(x)
	if err != nil {
		return err
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// Get retrieves an execution by id.
func (r *executionRepository) Get(ctx context.Context, id string) (*enrollment.Execution, error) {
	m := new(executionModel)
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &enrollment.ExecutionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return m.toDomain()
}

// GetByEnrollment retrieves the execution belonging to an enrollment.
func (r *executionRepository) GetByEnrollment(ctx context.Context, enrollmentID string) (*enrollment.Execution, error) {
	m := new(executionModel)
	err := r.db.NewSelect().Model(m).Where("enrollment_id = ?", enrollmentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &enrollment.ExecutionNotFoundError{ID: enrollmentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution by enrollment: %w", err)
	}
	return m.toDomain()
}

// Update persists the execution's mutable fields.
func (r *executionRepository) Update(ctx context.Context, x *enrollment.Execution) error {
	m, err := toExecutionModel(x)
	if err != nil {
		return err
	}
	res, err := r.db.NewUpdate().Model(m).
		Column("current_node_id", "status", "next_run_at", "last_run_at",
			"attempts", "max_attempts", "error_message", "execution_data",
			"lease_holder", "lease_expires_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &enrollment.ExecutionNotFoundError{ID: x.ID}
	}
	return nil
}

// ClaimDue marks up to limit due executions as processing under the
// holder's lease and returns them. The inner select locks the chosen
// rows with SKIP LOCKED, so concurrent claimers pass over each other's
// picks instead of blocking, and no row goes to two callers.
func (r *executionRepository) ClaimDue(ctx context.Context, now time.Time, limit int, holder string, leaseTTL time.Duration) ([]*enrollment.Execution, error) {
	if limit <= 0 {
		return nil, nil
	}
	expiry := now.Add(leaseTTL)

	var ms []*executionModel
	err := r.db.NewRaw(
		`UPDATE workflow_executions
		 SET status = 'processing', lease_holder = ?, lease_expires_at = ?, updated_at = ?
		 WHERE id IN (
			SELECT id FROM workflow_executions
			WHERE `+dueWhere+`
			ORDER BY next_run_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+executionColumns,
		holder, expiry, now,
		now, now, limit,
	).Scan(ctx, &ms)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due executions: %w", err)
	}

	var out []*enrollment.Execution
	for _, m := range ms {
		x, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// DueCount reports how many executions are currently due or abandoned.
func (r *executionRepository) DueCount(ctx context.Context, now time.Time) (int, error) {
	count, err := r.db.NewSelect().Model((*executionModel)(nil)).
		Where(dueWhere, now, now).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count due executions: %w", err)
	}
	return count, nil
}
