package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/followup/internal/message"
)

const messageColumns = `id, contact_id, channel, direction, subject, body, status,
	provider_id, provider_error, source, template_id, execution_id, created_at, updated_at`

// messageRepository implements message.Repository using SQLite.
type messageRepository struct {
	db *sql.DB
}

func newMessageRepository(db *sql.DB) *messageRepository {
	return &messageRepository{db: db}
}

// Ensure messageRepository implements message.Repository.
var _ message.Repository = (*messageRepository)(nil)

func scanMessage(scanner interface{ Scan(...any) error }) (*messageModel, error) {
	var m messageModel
	err := scanner.Scan(
		&m.ID, &m.ContactID, &m.Channel, &m.Direction, &m.Subject, &m.Body, &m.Status,
		&m.ProviderID, &m.ProviderError, &m.Source, &m.TemplateID, &m.ExecutionID,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// Create persists a new message.
func (r *messageRepository) Create(ctx context.Context, msg *message.Message) error {
	m := toMessageModel(msg)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ContactID, m.Channel, m.Direction, m.Subject, m.Body, m.Status,
		m.ProviderID, m.ProviderError, m.Source, m.TemplateID, m.ExecutionID,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Get retrieves a message by id.
func (r *messageRepository) Get(ctx context.Context, id string) (*message.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &message.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m.toDomain(), nil
}

// GetByProviderID retrieves the message carrying the given provider id.
func (r *messageRepository) GetByProviderID(ctx context.Context, providerID string) (*message.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE provider_id = ?`, providerID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &message.NotFoundError{ID: providerID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by provider id: %w", err)
	}
	return m.toDomain(), nil
}

// ListByContact returns a contact's messages, newest first.
func (r *messageRepository) ListByContact(ctx context.Context, contactID string, limit int) ([]*message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		 WHERE contact_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{contactID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return out, nil
}

// MarkSent records provider acceptance and advances the contact's
// last_contacted stamp in the same transaction, so the two can never
// drift apart.
func (r *messageRepository) MarkSent(ctx context.Context, id, providerID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	atUnix := at.Unix()
	result, err := tx.ExecContext(ctx,
		`UPDATE messages SET status = 'sent', provider_id = ?, updated_at = ? WHERE id = ?`,
		nullStr(providerID), atUnix, id)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &message.NotFoundError{ID: id}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE contacts SET last_contacted_at = ?, updated_at = ?
		 WHERE id = (SELECT contact_id FROM messages WHERE id = ?)`,
		atUnix, atUnix, id); err != nil {
		return fmt.Errorf("failed to stamp last contacted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mark sent: %w", err)
	}
	return nil
}

// MarkFailed records a provider rejection on the message.
func (r *messageRepository) MarkFailed(ctx context.Context, id, providerError string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status = 'failed', provider_error = ?, updated_at = ? WHERE id = ?`,
		providerError, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &message.NotFoundError{ID: id}
	}
	return nil
}

// UpdateStatusByProviderID applies a delivery-status callback. Unknown
// provider ids are a no-op since callbacks can outrun the MarkSent
// write.
func (r *messageRepository) UpdateStatusByProviderID(ctx context.Context, providerID string, status message.Status) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, updated_at = ? WHERE provider_id = ?`,
		string(status), time.Now().Unix(), providerID)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

// HasInboundSince reports whether an inbound message for the contact
// arrived at or after since, optionally restricted to one channel.
func (r *messageRepository) HasInboundSince(ctx context.Context, contactID string, since time.Time, channel message.Channel) (bool, message.Channel, error) {
	query := `SELECT channel FROM messages
		 WHERE contact_id = ? AND direction = 'inbound' AND created_at >= ?`
	args := []any{contactID, since.Unix()}
	if channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(channel))
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var found string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to check inbound messages: %w", err)
	}
	return true, message.Channel(found), nil
}
