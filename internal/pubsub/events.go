// Package pubsub is the engine's in-process fan-out: a generic broker
// carries contact mutations to the scheduler's trigger sweep and log
// lines to anything tailing the engine. Delivery is best-effort; state
// of record stays in the store.
package pubsub

import "time"

// EventType is the coarse kind of a published event. Domain detail
// rides in the payload.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event wraps a payload with its kind and publication time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
