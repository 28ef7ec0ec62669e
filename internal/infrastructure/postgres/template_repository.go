package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/message"
)

// templateRepository implements message.TemplateRepository using
// Postgres.
type templateRepository struct {
	db *bun.DB
}

func newTemplateRepository(db *bun.DB) *templateRepository {
	return &templateRepository{db: db}
}

// Ensure templateRepository implements message.TemplateRepository.
var _ message.TemplateRepository = (*templateRepository)(nil)

// Create persists a new template.
func (r *templateRepository) Create(ctx context.Context, t *message.Template) error {
	if _, err := r.db.NewInsert().Model(toTemplateModel(t)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// Get retrieves a template by id.
func (r *templateRepository) Get(ctx context.Context, id string) (*message.Template, error) {
	m := new(templateModel)
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &message.TemplateNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return m.toDomain(), nil
}

// GetByName retrieves a template by its unique name.
func (r *templateRepository) GetByName(ctx context.Context, name string) (*message.Template, error) {
	m := new(templateModel)
	err := r.db.NewSelect().Model(m).Where("name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &message.TemplateNotFoundError{ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template by name: %w", err)
	}
	return m.toDomain(), nil
}

// List returns all templates ordered by name.
func (r *templateRepository) List(ctx context.Context) ([]*message.Template, error) {
	var ms []*templateModel
	if err := r.db.NewSelect().Model(&ms).Order("name").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	var out []*message.Template
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// Update persists name, subject, and body changes.
func (r *templateRepository) Update(ctx context.Context, t *message.Template) error {
	res, err := r.db.NewUpdate().Model(toTemplateModel(t)).
		Column("name", "channel", "subject", "body", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &message.TemplateNotFoundError{ID: t.ID}
	}
	return nil
}

// Delete removes the template.
func (r *templateRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*templateModel)(nil)).
		Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &message.TemplateNotFoundError{ID: id}
	}
	return nil
}
