package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/followup/internal/enrollment"
)

// executionColumns is the list of columns to select for execution
// queries.
const executionColumns = `id, enrollment_id, current_node_id, status, next_run_at, last_run_at,
	attempts, max_attempts, error_message, execution_data, lease_holder, lease_expires_at,
	created_at, updated_at`

// dueWhere is the predicate shared by ClaimDue and DueCount: waiting
// rows whose schedule has arrived, plus processing rows whose lease
// has expired (abandoned by a crashed worker).
const dueWhere = `(status = 'waiting' AND next_run_at IS NOT NULL AND next_run_at <= ?)
	   OR (status = 'processing' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)`

// executionRepository implements enrollment.ExecutionRepository using
// SQLite.
type executionRepository struct {
	db *sql.DB
}

func newExecutionRepository(db *sql.DB) *executionRepository {
	return &executionRepository{db: db}
}

// Ensure executionRepository implements enrollment.ExecutionRepository.
var _ enrollment.ExecutionRepository = (*executionRepository)(nil)

func scanExecution(scanner interface{ Scan(...any) error }) (*executionModel, error) {
	var m executionModel
	err := scanner.Scan(
		&m.ID, &m.EnrollmentID, &m.CurrentNodeID, &m.Status, &m.NextRunAt, &m.LastRunAt,
		&m.Attempts, &m.MaxAttempts, &m.ErrorMessage, &m.ExecutionData, &m.LeaseHolder, &m.LeaseExpiresAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// Create persists a new execution.
func (r *executionRepository) Create(ctx context.Context, x *enrollment.Execution) error {
	m, err := toExecutionModel(x)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.EnrollmentID, m.CurrentNodeID, m.Status, m.NextRunAt, m.LastRunAt,
		m.Attempts, m.MaxAttempts, m.ErrorMessage, m.ExecutionData, m.LeaseHolder, m.LeaseExpiresAt,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// Get retrieves an execution by id.
func (r *executionRepository) Get(ctx context.Context, id string) (*enrollment.Execution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = ?`, id)
	m, err := scanExecution(row)
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
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE enrollment_id = ?`, enrollmentID)
	m, err := scanExecution(row)
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
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_executions SET
			current_node_id = ?, status = ?, next_run_at = ?, last_run_at = ?,
			attempts = ?, max_attempts = ?, error_message = ?, execution_data = ?,
			lease_holder = ?, lease_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		m.CurrentNodeID, m.Status, m.NextRunAt, m.LastRunAt,
		m.Attempts, m.MaxAttempts, m.ErrorMessage, m.ExecutionData,
		m.LeaseHolder, m.LeaseExpiresAt, m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &enrollment.ExecutionNotFoundError{ID: x.ID}
	}
	return nil
}

// ClaimDue marks up to limit due executions as processing under the
// holder's lease and returns them. The claim is a single UPDATE so
// SQLite's writer serialization guarantees no row goes to two callers:
// a second claimer sees the rows already processing with a live lease
// and skips them.
func (r *executionRepository) ClaimDue(ctx context.Context, now time.Time, limit int, holder string, leaseTTL time.Duration) ([]*enrollment.Execution, error) {
	if limit <= 0 {
		return nil, nil
	}
	nowUnix := now.Unix()
	expiry := now.Add(leaseTTL).Unix()

	rows, err := r.db.QueryContext(ctx,
		`UPDATE workflow_executions
		 SET status = 'processing', lease_holder = ?, lease_expires_at = ?, updated_at = ?
		 WHERE id IN (
			SELECT id FROM workflow_executions
			WHERE `+dueWhere+`
			ORDER BY next_run_at
			LIMIT ?
		 )
		 RETURNING `+executionColumns,
		holder, expiry, nowUnix,
		nowUnix, nowUnix, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*enrollment.Execution
	for rows.Next() {
		m, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed execution: %w", err)
		}
		x, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed executions: %w", err)
	}
	return out, nil
}

// DueCount reports how many executions are currently due or abandoned.
func (r *executionRepository) DueCount(ctx context.Context, now time.Time) (int, error) {
	nowUnix := now.Unix()
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_executions WHERE `+dueWhere,
		nowUnix, nowUnix,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count due executions: %w", err)
	}
	return count, nil
}
