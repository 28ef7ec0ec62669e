package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/notification"
)

// notificationRepository implements notification.Repository using
// Postgres.
type notificationRepository struct {
	db *bun.DB
}

func newNotificationRepository(db *bun.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// Ensure notificationRepository implements notification.Repository.
var _ notification.Repository = (*notificationRepository)(nil)

// Create persists a notification.
func (r *notificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	m := toNotificationModel(n)
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListUnread returns unread notifications, newest first.
func (r *notificationRepository) ListUnread(ctx context.Context) ([]*notification.Notification, error) {
	var ms []*notificationModel
	err := r.db.NewSelect().Model(&ms).
		Where("read_at IS NULL").
		OrderExpr("created_at DESC, seq DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread notifications: %w", err)
	}

	var out []*notification.Notification
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// MarkRead stamps read_at on the given notifications.
func (r *notificationRepository) MarkRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.NewUpdate().Model((*notificationModel)(nil)).
		Set("read_at = ?", at).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
