// Package message persists every communication with a contact, outbound
// and inbound, and resolves template placeholders at send time. The
// engine writes outbound rows before and after provider dispatch;
// inbound rows arrive through the Recorder and are only ever read back
// to answer "any reply since T?" queries.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the transport a message travels on.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// IsValid returns true if this is a recognized Channel value.
func (c Channel) IsValid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Direction distinguishes sends from replies.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDelivered Status = "delivered"
)

// Source records what produced an outbound message.
type Source string

const (
	SourceManual   Source = "manual"
	SourceWorkflow Source = "workflow"
)

// Message is one communication with a contact.
type Message struct {
	ID            string
	ContactID     string
	Channel       Channel
	Direction     Direction
	Subject       string
	Body          string
	Status        Status
	ProviderID    string
	ProviderError string
	Source        Source
	TemplateID    string
	ExecutionID   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutbound creates a queued outbound message.
func NewOutbound(contactID string, channel Channel, body string) *Message {
	now := time.Now()
	return &Message{
		ID:        uuid.New().String(),
		ContactID: contactID,
		Channel:   channel,
		Direction: DirectionOutbound,
		Body:      body,
		Status:    StatusQueued,
		Source:    SourceManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewInbound creates a delivered inbound message.
func NewInbound(contactID string, channel Channel, body string) *Message {
	now := time.Now()
	return &Message{
		ID:        uuid.New().String(),
		ContactID: contactID,
		Channel:   channel,
		Direction: DirectionInbound,
		Body:      body,
		Status:    StatusDelivered,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
