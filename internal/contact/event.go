package contact

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a contact mutation the trigger fan-out reacts to.
type EventType string

const (
	// EventContactAdded fires once when a contact is created.
	EventContactAdded EventType = "contact_added"
	// EventTagAdded fires for each tag newly applied to a contact.
	EventTagAdded EventType = "tag_added"
	// EventStatusChanged fires when a contact's status actually changes.
	EventStatusChanged EventType = "status_changed"
	// EventMessageReceived fires when an inbound message is recorded.
	EventMessageReceived EventType = "message_received"
)

// Payload keys used by the trigger fan-out.
const (
	PayloadTag     = "tag"
	PayloadStatus  = "status"
	PayloadChannel = "channel"
)

// Event is a durable record of one contact mutation. Events are written
// in the same breath as the mutation and swept by the scheduler, so a
// restart between mutation and fan-out loses nothing.
type Event struct {
	ID          string
	ContactID   string
	Type        EventType
	Payload     map[string]string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewEvent builds an unprocessed event with a fresh id.
func NewEvent(contactID string, eventType EventType, payload map[string]string) *Event {
	if payload == nil {
		payload = map[string]string{}
	}
	return &Event{
		ID:        uuid.New().String(),
		ContactID: contactID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}
