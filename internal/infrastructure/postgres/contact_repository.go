package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/contact"
)

// contactRepository implements contact.Repository using Postgres. Tags
// live in a shared tags table joined through contact_tags; custom
// fields in a keyed side table. Both load with the contact. Tag and
// field names compare through lower(), the expression the unique
// indexes are built on.
type contactRepository struct {
	db *bun.DB
}

func newContactRepository(db *bun.DB) *contactRepository {
	return &contactRepository{db: db}
}

// Ensure contactRepository implements contact.Repository.
var _ contact.Repository = (*contactRepository)(nil)

// Create persists a new contact with its tags and custom fields.
func (r *contactRepository) Create(ctx context.Context, c *contact.Contact) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toContactModel(c)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create contact: %w", err)
		}
		if err := insertTags(ctx, tx, c.ID, c.Tags); err != nil {
			return err
		}
		return insertCustomFields(ctx, tx, c.ID, c.CustomFields)
	})
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
	m := new(contactModel)
	err := r.db.NewSelect().Model(m).
		Where(where, arg).
		Order("created_at", "id").
		Limit(1).
		Scan(ctx)
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
	var ms []*contactModel
	q := r.db.NewSelect().Model(&ms)
	if filter.Tag != "" {
		q = q.Where(`id IN (
			SELECT ct.contact_id FROM contact_tags ct
			JOIN tags t ON t.id = ct.tag_id WHERE lower(t.name) = lower(?))`, filter.Tag)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if err := q.Order("created_at", "id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	var out []*contact.Contact
	for _, m := range ms {
		c := m.toDomain()
		if err := r.loadAttributes(ctx, c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Update persists contact fields and replaces tags and custom fields
// with the given sets, all in one transaction.
func (r *contactRepository) Update(ctx context.Context, c *contact.Contact) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(toContactModel(c)).
			Column("first_name", "last_name", "email", "phone", "status",
				"do_not_contact", "replied", "last_contacted_at", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update contact: %w", err)
		}
		ok, err := affected(res)
		if err != nil {
			return err
		}
		if !ok {
			return &contact.NotFoundError{ID: c.ID}
		}

		if _, err := tx.NewDelete().Model((*contactTagModel)(nil)).
			Where("contact_id = ?", c.ID).Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear contact tags: %w", err)
		}
		if _, err := tx.NewDelete().Model((*customFieldModel)(nil)).
			Where("contact_id = ?", c.ID).Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear contact custom fields: %w", err)
		}
		if err := insertTags(ctx, tx, c.ID, c.Tags); err != nil {
			return err
		}
		return insertCustomFields(ctx, tx, c.ID, c.CustomFields)
	})
}

// UpdateStatus sets only the lifecycle status.
func (r *contactRepository) UpdateStatus(ctx context.Context, id string, status contact.Status) error {
	return r.touch(ctx, id, "status = ?", string(status))
}

// MarkReplied flags the contact as having replied.
func (r *contactRepository) MarkReplied(ctx context.Context, id string) error {
	return r.touch(ctx, id, "replied = true")
}

// TouchLastContacted stamps the most recent outbound send.
func (r *contactRepository) TouchLastContacted(ctx context.Context, id string, at time.Time) error {
	return r.touch(ctx, id, "last_contacted_at = ?", at)
}

func (r *contactRepository) touch(ctx context.Context, id, set string, args ...any) error {
	res, err := r.db.NewUpdate().Model((*contactModel)(nil)).
		Set(set, args...).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &contact.NotFoundError{ID: id}
	}
	return nil
}

// AddTag applies a tag, creating the tag row on first use. Adding an
// existing tag is a no-op; tag names compare case-insensitively.
func (r *contactRepository) AddTag(ctx context.Context, id, tag string) error {
	if _, err := r.db.NewInsert().Model(&tagModel{Name: tag}).
		On("CONFLICT (lower(name)) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_tags (contact_id, tag_id)
		 SELECT ?, id FROM tags WHERE lower(name) = lower(?)
		 ON CONFLICT DO NOTHING`, id, tag)
	if pgErrCode(err) == pgForeignKeyViolation {
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
		 WHERE contact_id = ? AND tag_id IN (SELECT id FROM tags WHERE lower(name) = lower(?))`,
		id, tag)
	if err != nil {
		return fmt.Errorf("failed to remove contact tag: %w", err)
	}
	return nil
}

// SetCustomField creates or overwrites one custom field value.
func (r *contactRepository) SetCustomField(ctx context.Context, id, name, value string) error {
	_, err := r.db.NewInsert().
		Model(&customFieldModel{ContactID: id, Name: name, Value: value}).
		On("CONFLICT (contact_id, lower(name)) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if pgErrCode(err) == pgForeignKeyViolation {
		return &contact.NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to set contact custom field: %w", err)
	}
	return nil
}

// Delete removes the contact; tags, fields, and enrollments cascade.
func (r *contactRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*contactModel)(nil)).
		Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &contact.NotFoundError{ID: id}
	}
	return nil
}

// loadAttributes fills in the contact's tags and custom fields.
func (r *contactRepository) loadAttributes(ctx context.Context, c *contact.Contact) error {
	if err := r.db.NewSelect().
		ColumnExpr("t.name").
		TableExpr("tags AS t").
		Join("JOIN contact_tags AS ct ON ct.tag_id = t.id").
		Where("ct.contact_id = ?", c.ID).
		OrderExpr("t.name").
		Scan(ctx, &c.Tags); err != nil {
		return fmt.Errorf("failed to load contact tags: %w", err)
	}

	var fields []*customFieldModel
	if err := r.db.NewSelect().Model(&fields).
		Where("contact_id = ?", c.ID).
		Scan(ctx); err != nil {
		return fmt.Errorf("failed to load contact custom fields: %w", err)
	}
	c.CustomFields = map[string]string{}
	for _, f := range fields {
		c.CustomFields[f.Name] = f.Value
	}
	return nil
}

func insertTags(ctx context.Context, tx bun.Tx, contactID string, tags []string) error {
	for _, tag := range tags {
		if _, err := tx.NewInsert().Model(&tagModel{Name: tag}).
			On("CONFLICT (lower(name)) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert tag: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contact_tags (contact_id, tag_id)
			 SELECT ?, id FROM tags WHERE lower(name) = lower(?)
			 ON CONFLICT DO NOTHING`, contactID, tag); err != nil {
			return fmt.Errorf("failed to link contact tag: %w", err)
		}
	}
	return nil
}

func insertCustomFields(ctx context.Context, tx bun.Tx, contactID string, fields map[string]string) error {
	for name, value := range fields {
		if _, err := tx.NewInsert().
			Model(&customFieldModel{ContactID: contactID, Name: name, Value: value}).
			On("CONFLICT (contact_id, lower(name)) DO UPDATE").
			Set("value = EXCLUDED.value").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to set custom field %s: %w", name, err)
		}
	}
	return nil
}
