// Package notification records operator-facing alerts: failed
// executions and stopped enrollments. Nothing in the engine blocks on
// them; they exist for triage.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification.
type Kind string

const (
	KindExecutionFailed   Kind = "execution_failed"
	KindEnrollmentStopped Kind = "enrollment_stopped"
)

// Notification is one alert row.
type Notification struct {
	ID           string
	Kind         Kind
	Title        string
	Body         string
	WorkflowID   string
	EnrollmentID string
	ContactID    string
	ReadAt       *time.Time
	CreatedAt    time.Time
}

// New creates an unread notification with a fresh id.
func New(kind Kind, title, body string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// Repository defines the interface for notification persistence.
type Repository interface {
	// Create persists a notification.
	Create(ctx context.Context, n *Notification) error

	// ListUnread returns unread notifications, newest first.
	ListUnread(ctx context.Context) ([]*Notification, error)

	// MarkRead stamps read_at on the given notifications.
	MarkRead(ctx context.Context, ids []string, at time.Time) error
}
