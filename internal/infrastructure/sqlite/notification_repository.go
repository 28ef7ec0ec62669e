package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/followup/internal/notification"
)

const notificationColumns = `id, kind, title, body, workflow_id, enrollment_id, contact_id, read_at, created_at`

// notificationRepository implements notification.Repository using
// SQLite.
type notificationRepository struct {
	db *sql.DB
}

func newNotificationRepository(db *sql.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// Ensure notificationRepository implements notification.Repository.
var _ notification.Repository = (*notificationRepository)(nil)

// Create persists a notification.
func (r *notificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	m := toNotificationModel(n)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Kind, m.Title, m.Body, m.WorkflowID, m.EnrollmentID, m.ContactID,
		m.ReadAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListUnread returns unread notifications, newest first.
func (r *notificationRepository) ListUnread(ctx context.Context) ([]*notification.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE read_at IS NULL ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*notification.Notification
	for rows.Next() {
		var m notificationModel
		if err := rows.Scan(
			&m.ID, &m.Kind, &m.Title, &m.Body, &m.WorkflowID, &m.EnrollmentID, &m.ContactID,
			&m.ReadAt, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return out, nil
}

// MarkRead stamps read_at on the given notifications.
func (r *notificationRepository) MarkRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
