// Package enrollment binds contacts to workflows and tracks the durable
// cursor (execution) that advances each binding through the graph. Both
// entities carry explicit state machines; every transition funnels
// through TransitionTo so illegal moves fail loudly instead of
// corrupting engine state.
package enrollment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an enrollment.
type Status string

const (
	// StatusActive enrollments have exactly one execution advancing
	// them. At most one active enrollment exists per (workflow,
	// contact) pair.
	StatusActive Status = "active"
	// StatusCompleted means the execution reached a node with no
	// successor.
	StatusCompleted Status = "completed"
	// StatusStopped means a reply gate or circular sub-workflow
	// reference ended the run early; StopReason says which.
	StatusStopped Status = "stopped"
	// StatusFailed means the execution exhausted its retries.
	StatusFailed Status = "failed"
)

// validTransitions defines the allowed enrollment state changes.
// Terminal states are absorbing.
var validTransitions = map[Status][]Status{
	StatusActive:    {StatusCompleted, StatusStopped, StatusFailed},
	StatusCompleted: {},
	StatusStopped:   {},
	StatusFailed:    {},
}

// CanTransitionTo returns true if the transition is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// Stop reasons recorded on stopped enrollments.
const (
	// StopReasonCircular is recorded when call_sub_workflow refuses a
	// circular reference.
	StopReasonCircular = "circular_reference"
)

// StopReasonReply renders the reason recorded by a reply gate.
func StopReasonReply(channel string) string {
	return fmt.Sprintf("Contact replied via %s", channel)
}

// Enrollment binds one contact to one workflow run.
type Enrollment struct {
	ID          string
	WorkflowID  string
	ContactID   string
	Status      Status
	EnrolledAt  time.Time
	CompletedAt *time.Time
	StoppedAt   *time.Time
	StopReason  string
	UpdatedAt   time.Time
}

// New creates an active enrollment with a fresh id.
func New(workflowID, contactID string) *Enrollment {
	now := time.Now()
	return &Enrollment{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		ContactID:  contactID,
		Status:     StatusActive,
		EnrolledAt: now,
		UpdatedAt:  now,
	}
}

// TransitionTo moves the enrollment to the target status, stamping the
// matching timestamp. Returns an error for illegal transitions.
func (e *Enrollment) TransitionTo(target Status) error {
	if !e.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid enrollment transition from %s to %s", e.Status, target)
	}
	now := time.Now()
	switch target {
	case StatusCompleted:
		e.CompletedAt = &now
	case StatusStopped, StatusFailed:
		e.StoppedAt = &now
	}
	e.Status = target
	e.UpdatedAt = now
	return nil
}

// Stop transitions to stopped and records the reason.
func (e *Enrollment) Stop(reason string) error {
	if err := e.TransitionTo(StatusStopped); err != nil {
		return err
	}
	e.StopReason = reason
	return nil
}
