package message

import (
	"context"
	"fmt"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/log"
)

// Inbound is a reply as delivered by a provider webhook.
type Inbound struct {
	// From is the sender's phone number or email address, used to
	// resolve the contact.
	From       string
	Channel    Channel
	Subject    string
	Body       string
	ProviderID string
}

// Recorder ingests provider callbacks: inbound replies and delivery
// status updates. It is the only writer of inbound message rows.
type Recorder struct {
	messages Repository
	contacts *contact.Service
}

// NewRecorder creates a recorder.
func NewRecorder(messages Repository, contacts *contact.Service) *Recorder {
	return &Recorder{messages: messages, contacts: contacts}
}

// RecordInbound persists a reply and marks the contact as replied.
// The contact is resolved by phone for SMS and by email otherwise.
func (r *Recorder) RecordInbound(ctx context.Context, in Inbound) (*Message, error) {
	if !in.Channel.IsValid() {
		return nil, fmt.Errorf("unknown channel %q", in.Channel)
	}

	var (
		c   *contact.Contact
		err error
	)
	if in.Channel == ChannelSMS {
		c, err = r.contacts.GetByPhone(ctx, in.From)
	} else {
		c, err = r.contacts.GetByEmail(ctx, in.From)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving sender %q: %w", in.From, err)
	}

	m := NewInbound(c.ID, in.Channel, in.Body)
	m.Subject = in.Subject
	m.ProviderID = in.ProviderID
	if err := r.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("recording inbound message: %w", err)
	}

	if err := r.contacts.RecordInbound(ctx, c.ID, string(in.Channel)); err != nil {
		// The reply row is durable; stop_on_reply still works even if
		// the replied flag lags.
		log.ErrorErr(log.CatProvider, "failed to mark contact replied", err,
			"contact_id", c.ID)
	}

	log.Info(log.CatProvider, "inbound message recorded",
		"contact_id", c.ID,
		"channel", string(in.Channel),
		"message_id", m.ID)
	return m, nil
}

// RecordStatus applies a delivery-status callback by provider id.
func (r *Recorder) RecordStatus(ctx context.Context, providerID string, status Status) error {
	if err := r.messages.UpdateStatusByProviderID(ctx, providerID, status); err != nil {
		return fmt.Errorf("updating message status for provider id %s: %w", providerID, err)
	}
	return nil
}
