package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/followup/internal/message"
)

const templateColumns = `id, name, channel, subject, body, created_at, updated_at`

// templateRepository implements message.TemplateRepository using
// SQLite.
type templateRepository struct {
	db *sql.DB
}

func newTemplateRepository(db *sql.DB) *templateRepository {
	return &templateRepository{db: db}
}

// Ensure templateRepository implements message.TemplateRepository.
var _ message.TemplateRepository = (*templateRepository)(nil)

func scanTemplate(scanner interface{ Scan(...any) error }) (*templateModel, error) {
	var m templateModel
	err := scanner.Scan(&m.ID, &m.Name, &m.Channel, &m.Subject, &m.Body, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

// Create persists a new template.
func (r *templateRepository) Create(ctx context.Context, t *message.Template) error {
	m := toTemplateModel(t)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Channel, m.Subject, m.Body, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// Get retrieves a template by id.
func (r *templateRepository) Get(ctx context.Context, id string) (*message.Template, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	m, err := scanTemplate(row)
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
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE name = ?`, name)
	m, err := scanTemplate(row)
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*message.Template
	for rows.Next() {
		m, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating template rows: %w", err)
	}
	return out, nil
}

// Update persists name, subject, and body changes.
func (r *templateRepository) Update(ctx context.Context, t *message.Template) error {
	m := toTemplateModel(t)
	result, err := r.db.ExecContext(ctx,
		`UPDATE templates SET name = ?, channel = ?, subject = ?, body = ?, updated_at = ?
		 WHERE id = ?`,
		m.Name, m.Channel, m.Subject, m.Body, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &message.TemplateNotFoundError{ID: t.ID}
	}
	return nil
}

// Delete removes the template.
func (r *templateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &message.TemplateNotFoundError{ID: id}
	}
	return nil
}
