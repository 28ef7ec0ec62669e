package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/message"
)

// messageRepository implements message.Repository using Postgres.
type messageRepository struct {
	db *bun.DB
}

func newMessageRepository(db *bun.DB) *messageRepository {
	return &messageRepository{db: db}
}

// Ensure messageRepository implements message.Repository.
var _ message.Repository = (*messageRepository)(nil)

// Create persists a new message.
func (r *messageRepository) Create(ctx context.Context, msg *message.Message) error {
	if _, err := r.db.NewInsert().Model(toMessageModel(msg)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Get retrieves a message by id.
func (r *messageRepository) Get(ctx context.Context, id string) (*message.Message, error) {
	m := new(messageModel)
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
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
	m := new(messageModel)
	err := r.db.NewSelect().Model(m).Where("provider_id = ?", providerID).Scan(ctx)
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
	var ms []*messageModel
	q := r.db.NewSelect().Model(&ms).
		Where("contact_id = ?", contactID).
		OrderExpr("created_at DESC, seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var out []*message.Message
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// MarkSent records provider acceptance and advances the contact's
// last_contacted stamp in the same transaction, so the two can never
// drift apart.
func (r *messageRepository) MarkSent(ctx context.Context, id, providerID string, at time.Time) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*messageModel)(nil)).
			Set("status = 'sent'").
			Set("provider_id = ?", nullStr(providerID)).
			Set("updated_at = ?", at).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark message sent: %w", err)
		}
		ok, err := affected(res)
		if err != nil {
			return err
		}
		if !ok {
			return &message.NotFoundError{ID: id}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE contacts SET last_contacted_at = ?, updated_at = ?
			 WHERE id = (SELECT contact_id FROM messages WHERE id = ?)`,
			at, at, id); err != nil {
			return fmt.Errorf("failed to stamp last contacted: %w", err)
		}
		return nil
	})
}

// MarkFailed records a provider rejection on the message.
func (r *messageRepository) MarkFailed(ctx context.Context, id, providerError string) error {
	res, err := r.db.NewUpdate().Model((*messageModel)(nil)).
		Set("status = 'failed'").
		Set("provider_error = ?", providerError).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return &message.NotFoundError{ID: id}
	}
	return nil
}

// UpdateStatusByProviderID applies a delivery-status callback. Unknown
// provider ids are a no-op since callbacks can outrun the MarkSent
// write.
func (r *messageRepository) UpdateStatusByProviderID(ctx context.Context, providerID string, status message.Status) error {
	if _, err := r.db.NewUpdate().Model((*messageModel)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", time.Now()).
		Where("provider_id = ?", providerID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

// HasInboundSince reports whether an inbound message for the contact
// arrived at or after since, optionally restricted to one channel.
func (r *messageRepository) HasInboundSince(ctx context.Context, contactID string, since time.Time, channel message.Channel) (bool, message.Channel, error) {
	q := r.db.NewSelect().Model((*messageModel)(nil)).
		Column("channel").
		Where("contact_id = ?", contactID).
		Where("direction = 'inbound'").
		Where("created_at >= ?", since)
	if channel != "" {
		q = q.Where("channel = ?", string(channel))
	}

	var found string
	err := q.OrderExpr("created_at DESC").Limit(1).Scan(ctx, &found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to check inbound messages: %w", err)
	}
	return true, message.Channel(found), nil
}
