package contact

import (
	"context"
	"fmt"

	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/pubsub"
)

// Service wraps the repository with event bookkeeping: every mutation
// that can trigger an enrollment appends a durable Event row and
// publishes it on the broker so the scheduler can react before its next
// regular tick.
type Service struct {
	repo   Repository
	events EventRepository
	broker *pubsub.Broker[*Event]
}

// NewService creates a contact service.
func NewService(repo Repository, events EventRepository) *Service {
	return &Service{
		repo:   repo,
		events: events,
		broker: pubsub.NewBroker[*Event](),
	}
}

// Subscribe returns a channel of published contact events. The channel
// closes when ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context) <-chan pubsub.Event[*Event] {
	return s.broker.Subscribe(ctx)
}

// Broker exposes the underlying event broker so the scheduler can
// subscribe with its own lifecycle.
func (s *Service) Broker() *pubsub.Broker[*Event] {
	return s.broker
}

// Close shuts down the event broker.
func (s *Service) Close() {
	s.broker.Close()
}

// Create persists the contact and records a contact_added event.
func (s *Service) Create(ctx context.Context, c *Contact) error {
	if err := s.repo.Create(ctx, c); err != nil {
		return fmt.Errorf("creating contact: %w", err)
	}
	s.record(ctx, NewEvent(c.ID, EventContactAdded, nil))
	return nil
}

// Get returns a contact by id.
func (s *Service) Get(ctx context.Context, id string) (*Contact, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns the contact with the given email address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Contact, error) {
	return s.repo.GetByEmail(ctx, email)
}

// GetByPhone returns the contact with the given phone number.
func (s *Service) GetByPhone(ctx context.Context, phone string) (*Contact, error) {
	return s.repo.GetByPhone(ctx, phone)
}

// List returns contacts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Contact, error) {
	return s.repo.List(ctx, filter)
}

// AddTag applies a tag and records a tag_added event. Applying a tag
// the contact already has changes nothing and fires no event.
func (s *Service) AddTag(ctx context.Context, id, tag string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.HasTag(tag) {
		return nil
	}
	if err := s.repo.AddTag(ctx, id, tag); err != nil {
		return fmt.Errorf("adding tag %q: %w", tag, err)
	}
	s.record(ctx, NewEvent(id, EventTagAdded, map[string]string{PayloadTag: tag}))
	return nil
}

// RemoveTag removes a tag. Tag removal does not trigger enrollments and
// records no event.
func (s *Service) RemoveTag(ctx context.Context, id, tag string) error {
	return s.repo.RemoveTag(ctx, id, tag)
}

// SetStatus updates the lifecycle status and records a status_changed
// event when the value actually changed.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("unknown contact status %q", status)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == status {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	s.record(ctx, NewEvent(id, EventStatusChanged, map[string]string{PayloadStatus: string(status)}))
	return nil
}

// SetCustomField creates or overwrites one custom field value.
func (s *Service) SetCustomField(ctx context.Context, id, name, value string) error {
	return s.repo.SetCustomField(ctx, id, name, value)
}

// RecordInbound marks the contact as replied and records a
// message_received event. Called by the inbound message recorder, not
// by workflow processors.
func (s *Service) RecordInbound(ctx context.Context, id, channel string) error {
	if err := s.repo.MarkReplied(ctx, id); err != nil {
		return fmt.Errorf("marking contact replied: %w", err)
	}
	s.record(ctx, NewEvent(id, EventMessageReceived, map[string]string{PayloadChannel: channel}))
	return nil
}

// record appends the durable event and publishes it. A dropped publish
// is harmless because the scheduler sweeps unprocessed rows every tick;
// a failed append means the fan-out will miss this mutation, so it is
// logged but does not fail the mutation itself.
func (s *Service) record(ctx context.Context, e *Event) {
	if err := s.events.Append(ctx, e); err != nil {
		log.ErrorErr(log.CatTrigger, "failed to append contact event", err,
			"contact_id", e.ContactID,
			"event_type", string(e.Type))
	}
	s.broker.Publish(pubsub.CreatedEvent, e)
}
