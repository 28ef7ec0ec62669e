package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ncruces/go-sqlite3"

	"github.com/zjrosen/followup/internal/contact"
)

// contactColumns is the list of columns to select for contact queries.
const contactColumns = `id, first_name, last_name, email, phone, status, do_not_contact, replied, last_contacted_at, created_at, updated_at`

// contactRepository implements contact.Repository using SQLite. Tags
// live in a shared tags table joined through contact_tags; custom
// fields in a keyed side table. Both load with the contact.
type contactRepository struct {
	db *sql.DB
}

func newContactRepository(db *sql.DB) *contactRepository {
	return &contactRepository{db: db}
}

// Ensure contactRepository implements contact.Repository.
var _ contact.Repository = (*contactRepository)(nil)

func scanContact(scanner interface{ Scan(...any) error }) (*contactModel, error) {
	var m contactModel
	err := scanner.Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.Status,
		&m.DoNotContact, &m.Replied, &m.LastContactedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// Create persists a new contact with its tags and custom fields.
func (r *contactRepository) Create(ctx context.Context, c *contact.Contact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := toContactModel(c)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FirstName, m.LastName, m.Email, m.Phone, m.Status,
		m.DoNotContact, m.Replied, m.LastContactedAt, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	if err := insertTags(ctx, tx, c.ID, c.Tags); err != nil {
		return err
	}
	if err := insertCustomFields(ctx, tx, c.ID, c.CustomFields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contact create: %w", err)
	}
	return nil
}

// Get retrieves a contact by id with tags and custom fields loaded.
func (r *contactRepository) Get(ctx context.Context, id string) (*contact.Contact, error) {
	return r.getWhere(ctx, "id = ?", id)
}

// GetByEmail retrieves the contact with the given email. When several
// contacts share an address the oldest wins.
func (r *contactRepository) GetByEmail(ctx context.Context, email string) (*contact.Contact, error) {
	return r.getWhere(ctx, "email = ?", email)
}

// GetByPhone retrieves the contact with the given phone number.
func (r *contactRepository) GetByPhone(ctx context.Context, phone string) (*contact.Contact, error) {
	return r.getWhere(ctx, "phone = ?", phone)
}

func (r *contactRepository) getWhere(ctx context.Context, where string, arg string) (*contact.Contact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE `+where+`
		 ORDER BY created_at, id LIMIT 1`, arg)
	m, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &contact.NotFoundError{ID: arg}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	c := m.toDomain()
	if err := r.loadAttributes(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List retrieves contacts matching the filter, oldest first.
func (r *contactRepository) List(ctx context.Context, filter contact.ListFilter) ([]*contact.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	var args []any
	if filter.Tag != "" {
		query = `SELECT ` + contactColumns + ` FROM contacts WHERE id IN (
			SELECT ct.contact_id FROM contact_tags ct
			JOIN tags t ON t.id = ct.tag_id WHERE t.name = ?)`
		args = append(args, filter.Tag)
		if filter.Status != "" {
			query += ` AND status = ?`
			args = append(args, string(filter.Status))
		}
	} else if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contact.Contact
	for rows.Next() {
		m, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contact rows: %w", err)
	}

	for _, c := range out {
		if err := r.loadAttributes(ctx, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update persists contact fields and replaces tags and custom fields
// with the given sets, all in one transaction.
func (r *contactRepository) Update(ctx context.Context, c *contact.Contact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := toContactModel(c)
	result, err := tx.ExecContext(ctx,
		`UPDATE contacts SET
			first_name = ?, last_name = ?, email = ?, phone = ?, status = ?,
			do_not_contact = ?, replied = ?, last_contacted_at = ?, updated_at = ?
		 WHERE id = ?`,
		m.FirstName, m.LastName, m.Email, m.Phone, m.Status,
		m.DoNotContact, m.Replied, m.LastContactedAt, m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &contact.NotFoundError{ID: c.ID}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_tags WHERE contact_id = ?`, c.ID); err != nil {
		return fmt.Errorf("failed to clear contact tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_custom_fields WHERE contact_id = ?`, c.ID); err != nil {
		return fmt.Errorf("failed to clear contact custom fields: %w", err)
	}
	if err := insertTags(ctx, tx, c.ID, c.Tags); err != nil {
		return err
	}
	if err := insertCustomFields(ctx, tx, c.ID, c.CustomFields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contact update: %w", err)
	}
	return nil
}

// UpdateStatus sets only the lifecycle status.
func (r *contactRepository) UpdateStatus(ctx context.Context, id string, status contact.Status) error {
	return r.touch(ctx, id, `status = ?`, string(status))
}

// MarkReplied flags the contact as having replied.
func (r *contactRepository) MarkReplied(ctx context.Context, id string) error {
	return r.touch(ctx, id, `replied = 1`)
}

// TouchLastContacted stamps the most recent outbound send.
func (r *contactRepository) TouchLastContacted(ctx context.Context, id string, at time.Time) error {
	return r.touch(ctx, id, `last_contacted_at = ?`, at.Unix())
}

func (r *contactRepository) touch(ctx context.Context, id, set string, args ...any) error {
	args = append(args, time.Now().Unix(), id)
	result, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &contact.NotFoundError{ID: id}
	}
	return nil
}

// AddTag applies a tag, creating the tag row on first use. Adding an
// existing tag is a no-op; tag names compare case-insensitively.
func (r *contactRepository) AddTag(ctx context.Context, id, tag string) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO contact_tags (contact_id, tag_id)
		 SELECT ?, id FROM tags WHERE name = ?`, id, tag)
	if errors.Is(err, sqlite3.CONSTRAINT_FOREIGNKEY) {
		return &contact.NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to add contact tag: %w", err)
	}
	return nil
}

// RemoveTag removes a tag. Removing an absent tag is a no-op.
func (r *contactRepository) RemoveTag(ctx context.Context, id, tag string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM contact_tags
		 WHERE contact_id = ? AND tag_id IN (SELECT id FROM tags WHERE name = ?)`,
		id, tag)
	if err != nil {
		return fmt.Errorf("failed to remove contact tag: %w", err)
	}
	return nil
}

// SetCustomField creates or overwrites one custom field value.
func (r *contactRepository) SetCustomField(ctx context.Context, id, name, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_custom_fields (contact_id, name, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT(contact_id, name) DO UPDATE SET value = excluded.value`,
		id, name, value)
	if errors.Is(err, sqlite3.CONSTRAINT_FOREIGNKEY) {
		return &contact.NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to set contact custom field: %w", err)
	}
	return nil
}

// Delete removes the contact; tags, fields, and enrollments cascade.
func (r *contactRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &contact.NotFoundError{ID: id}
	}
	return nil
}

// loadAttributes fills in the contact's tags and custom fields.
func (r *contactRepository) loadAttributes(ctx context.Context, c *contact.Contact) error {
	tagRows, err := r.db.QueryContext(ctx,
		`SELECT t.name FROM tags t
		 JOIN contact_tags ct ON ct.tag_id = t.id
		 WHERE ct.contact_id = ? ORDER BY t.name`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load contact tags: %w", err)
	}
	defer func() { _ = tagRows.Close() }()

	for tagRows.Next() {
		var name string
		if err := tagRows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan tag row: %w", err)
		}
		c.Tags = append(c.Tags, name)
	}
	if err := tagRows.Err(); err != nil {
		return fmt.Errorf("error iterating tag rows: %w", err)
	}

	fieldRows, err := r.db.QueryContext(ctx,
		`SELECT name, value FROM contact_custom_fields WHERE contact_id = ?`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load contact custom fields: %w", err)
	}
	defer func() { _ = fieldRows.Close() }()

	c.CustomFields = map[string]string{}
	for fieldRows.Next() {
		var name, value string
		if err := fieldRows.Scan(&name, &value); err != nil {
			return fmt.Errorf("failed to scan custom field row: %w", err)
		}
		c.CustomFields[name] = value
	}
	if err := fieldRows.Err(); err != nil {
		return fmt.Errorf("error iterating custom field rows: %w", err)
	}
	return nil
}

func insertTags(ctx context.Context, tx *sql.Tx, contactID string, tags []string) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
			return fmt.Errorf("failed to upsert tag: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO contact_tags (contact_id, tag_id)
			 SELECT ?, id FROM tags WHERE name = ?`, contactID, tag); err != nil {
			return fmt.Errorf("failed to link contact tag: %w", err)
		}
	}
	return nil
}

func insertCustomFields(ctx context.Context, tx *sql.Tx, contactID string, fields map[string]string) error {
	for name, value := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contact_custom_fields (contact_id, name, value)
			 VALUES (?, ?, ?)
			 ON CONFLICT(contact_id, name) DO UPDATE SET value = excluded.value`,
			contactID, name, value); err != nil {
			return fmt.Errorf("failed to set custom field %s: %w", name, err)
		}
	}
	return nil
}
