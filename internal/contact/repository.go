package contact

import (
	"context"
	"fmt"
	"time"
)

// NotFoundError indicates the requested contact does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("contact not found: %s", e.ID)
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	Status Status
	Tag    string
}

// Repository defines the interface for contact persistence. Tags and
// custom fields load with the contact.
type Repository interface {
	// Create persists a new contact with its tags and custom fields.
	Create(ctx context.Context, c *Contact) error

	// Get returns a contact by id. Returns *NotFoundError if no such
	// contact exists.
	Get(ctx context.Context, id string) (*Contact, error)

	// GetByEmail returns the contact with the given email address.
	GetByEmail(ctx context.Context, email string) (*Contact, error)

	// GetByPhone returns the contact with the given phone number.
	GetByPhone(ctx context.Context, phone string) (*Contact, error)

	// List returns contacts matching the filter, ordered by creation
	// time.
	List(ctx context.Context, filter ListFilter) ([]*Contact, error)

	// Update persists contact fields, replacing tags and custom fields
	// with the given sets.
	Update(ctx context.Context, c *Contact) error

	// UpdateStatus sets only the lifecycle status.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// MarkReplied flags the contact as having replied at least once.
	MarkReplied(ctx context.Context, id string) error

	// TouchLastContacted stamps the most recent outbound send.
	TouchLastContacted(ctx context.Context, id string, at time.Time) error

	// AddTag applies a tag. Adding an existing tag is a no-op.
	AddTag(ctx context.Context, id, tag string) error

	// RemoveTag removes a tag. Removing an absent tag is a no-op.
	RemoveTag(ctx context.Context, id, tag string) error

	// SetCustomField creates or overwrites one custom field value.
	SetCustomField(ctx context.Context, id, name, value string) error

	// Delete removes the contact; enrollments cascade.
	Delete(ctx context.Context, id string) error
}

// EventRepository defines the interface for the durable contact-event
// queue the trigger fan-out consumes.
type EventRepository interface {
	// Append writes an unprocessed event.
	Append(ctx context.Context, e *Event) error

	// ListUnprocessed returns up to limit events with no processed_at,
	// oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]*Event, error)

	// MarkProcessed stamps processed_at on the given events.
	MarkProcessed(ctx context.Context, ids []string, at time.Time) error
}
