package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ncruces/go-sqlite3"

	"github.com/zjrosen/followup/internal/enrollment"
)

// enrollmentColumns is the list of columns to select for enrollment
// queries.
const enrollmentColumns = `id, workflow_id, contact_id, status, enrolled_at, completed_at, stopped_at, stop_reason, updated_at`

// enrollmentRepository implements enrollment.Repository using SQLite.
type enrollmentRepository struct {
	db *sql.DB
}

func newEnrollmentRepository(db *sql.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

// Ensure enrollmentRepository implements enrollment.Repository.
var _ enrollment.Repository = (*enrollmentRepository)(nil)

func scanEnrollment(scanner interface{ Scan(...any) error }) (*enrollmentModel, error) {
	var m enrollmentModel
	err := scanner.Scan(
		&m.ID, &m.WorkflowID, &m.ContactID, &m.Status,
		&m.EnrolledAt, &m.CompletedAt, &m.StoppedAt, &m.StopReason, &m.UpdatedAt,
	)
	return &m, err
}

// Create persists a new enrollment. The partial unique index on active
// (workflow, contact) pairs turns a duplicate into
// *enrollment.DuplicateActiveError.
func (r *enrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	m := toEnrollmentModel(e)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_enrollments (`+enrollmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.WorkflowID, m.ContactID, m.Status,
		m.EnrolledAt, m.CompletedAt, m.StoppedAt, m.StopReason, m.UpdatedAt,
	)
	if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) {
		return &enrollment.DuplicateActiveError{WorkflowID: e.WorkflowID, ContactID: e.ContactID}
	}
	if err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// Get retrieves an enrollment by id.
func (r *enrollmentRepository) Get(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM workflow_enrollments WHERE id = ?`, id)
	m, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &enrollment.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return m.toDomain(), nil
}

// GetActive retrieves the active enrollment for a (workflow, contact)
// pair.
func (r *enrollmentRepository) GetActive(ctx context.Context, workflowID, contactID string) (*enrollment.Enrollment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM workflow_enrollments
		 WHERE workflow_id = ? AND contact_id = ? AND status = 'active'`,
		workflowID, contactID)
	m, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &enrollment.NotFoundError{ID: workflowID + "/" + contactID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active enrollment: %w", err)
	}
	return m.toDomain(), nil
}

// List retrieves enrollments matching the filter, newest first.
func (r *enrollmentRepository) List(ctx context.Context, filter enrollment.ListFilter) ([]*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM workflow_enrollments`
	var conditions []string
	var args []any

	if filter.WorkflowID != "" {
		conditions = append(conditions, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.ContactID != "" {
		conditions = append(conditions, "contact_id = ?")
		args = append(args, filter.ContactID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY enrolled_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*enrollment.Enrollment
	for rows.Next() {
		m, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}
	return out, nil
}

// Update persists the enrollment's mutable fields.
func (r *enrollmentRepository) Update(ctx context.Context, e *enrollment.Enrollment) error {
	m := toEnrollmentModel(e)
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_enrollments SET
			status = ?, completed_at = ?, stopped_at = ?, stop_reason = ?, updated_at = ?
		 WHERE id = ?`,
		m.Status, m.CompletedAt, m.StoppedAt, m.StopReason, m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &enrollment.NotFoundError{ID: e.ID}
	}
	return nil
}
