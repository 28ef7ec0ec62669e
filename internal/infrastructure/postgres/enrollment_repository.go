package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/enrollment"
)

// enrollmentRepository implements enrollment.Repository using Postgres.
type enrollmentRepository struct {
	db *bun.DB
}

func newEnrollmentRepository(db *bun.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

// Ensure enrollmentRepository implements enrollment.Repository.
var _ enrollment.Repository = (*enrollmentRepository)(nil)

// Create persists a new enrollment. The partial unique index on active
// (workflow, contact) pairs turns a duplicate into
// *enrollment.DuplicateActiveError.
func (r *enrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	_, err := r.db.NewInsert().Model(toEnrollmentModel(e)).Exec(ctx)
	if pgErrCode(err) == pgUniqueViolation {
		return &enrollment.DuplicateActiveError{WorkflowID: e.WorkflowID, ContactID: e.ContactID}
	}
	if err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// Get retrieves an enrollment by id.
func (r *enrollmentRepository) Get(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	m := new(enrollmentModel)
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
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
	m := new(enrollmentModel)
	err := r.db.NewSelect().Model(m).
		Where("workflow_id = ?", workflowID).
		Where("contact_id = ?", contactID).
		Where("status = 'active'").
		Scan(ctx)
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
	var ms []*enrollmentModel
	q := r.db.NewSelect().Model(&ms)
	if filter.WorkflowID != "" {
		q = q.Where("workflow_id = ?", filter.WorkflowID)
	}
	if filter.ContactID != "" {
		q = q.Where("contact_id = ?", filter.ContactID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if err := q.Order("enrolled_at DESC", "id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	var out []*enrollment.Enrollment
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// Update persists the enrollment's mutable fields.
func (r *enrollmentRepository) Update(ctx context.Context, e *enrollment.Enrollment) error {
	res, err := r.db.NewUpdate().Model(toEnrollmentModel(e)).
		Column("status", "completed_at", "stopped_at", "stop_reason", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &enrollment.NotFoundError{ID: e.ID}
	}
	return nil
}
