package message

import (
	"context"
	"fmt"
	"time"
)

// NotFoundError indicates the requested message does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message not found: %s", e.ID)
}

// TemplateNotFoundError indicates the requested template does not
// exist.
type TemplateNotFoundError struct {
	ID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template not found: %s", e.ID)
}

// Repository defines the interface for message persistence.
type Repository interface {
	// Create persists a new message.
	Create(ctx context.Context, m *Message) error

	// Get returns a message by id. Returns *NotFoundError if no such
	// message exists.
	Get(ctx context.Context, id string) (*Message, error)

	// GetByProviderID returns the message carrying the given provider
	// id.
	GetByProviderID(ctx context.Context, providerID string) (*Message, error)

	// ListByContact returns a contact's messages, newest first, up to
	// limit. A limit of 0 means no limit.
	ListByContact(ctx context.Context, contactID string, limit int) ([]*Message, error)

	// MarkSent records provider acceptance: status becomes sent, the
	// provider id is stored, and the contact's last_contacted stamp is
	// advanced in the same transaction.
	MarkSent(ctx context.Context, id, providerID string, at time.Time) error

	// MarkFailed records a provider rejection on the message.
	MarkFailed(ctx context.Context, id, providerError string) error

	// UpdateStatusByProviderID applies a delivery-status callback.
	// Unknown provider ids are a no-op; callbacks can outrun the
	// MarkSent write.
	UpdateStatusByProviderID(ctx context.Context, providerID string, status Status) error

	// HasInboundSince reports whether any inbound message for the
	// contact was created at or after since, optionally restricted to
	// one channel (empty means any). The second result is the channel
	// of the matching message.
	HasInboundSince(ctx context.Context, contactID string, since time.Time, channel Channel) (bool, Channel, error)
}

// TemplateRepository defines the interface for template persistence.
type TemplateRepository interface {
	// Create persists a new template.
	Create(ctx context.Context, t *Template) error

	// Get returns a template by id. Returns *TemplateNotFoundError if
	// no such template exists.
	Get(ctx context.Context, id string) (*Template, error)

	// GetByName returns a template by its unique name.
	GetByName(ctx context.Context, name string) (*Template, error)

	// List returns all templates ordered by name.
	List(ctx context.Context) ([]*Template, error)

	// Update persists name, subject, and body changes.
	Update(ctx context.Context, t *Template) error

	// Delete removes the template.
	Delete(ctx context.Context, id string) error
}
