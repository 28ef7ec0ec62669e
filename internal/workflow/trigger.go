package workflow

import (
	"fmt"
	"time"
)

// TriggerType identifies what starts an enrollment.
type TriggerType string

const (
	// TriggerManual enrolls only through the API or CLI.
	TriggerManual TriggerType = "manual"
	// TriggerContactAdded enrolls every newly created contact.
	TriggerContactAdded TriggerType = "contact_added"
	// TriggerTagAdded enrolls a contact when a matching tag is applied.
	TriggerTagAdded TriggerType = "tag_added"
	// TriggerStatusChanged enrolls a contact when its status changes to
	// the configured value.
	TriggerStatusChanged TriggerType = "status_changed"
	// TriggerScheduled enrolls all matching contacts at a point in time,
	// optionally repeating on a fixed interval.
	TriggerScheduled TriggerType = "scheduled"
	// TriggerSubWorkflow enrolls only when called from a parent
	// workflow.
	TriggerSubWorkflow TriggerType = "sub_workflow"
)

// IsValid returns true if this is a recognized TriggerType value.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerManual, TriggerContactAdded, TriggerTagAdded,
		TriggerStatusChanged, TriggerScheduled, TriggerSubWorkflow:
		return true
	}
	return false
}

// TriggerConfig describes when a workflow enrolls contacts. Tag applies
// to tag_added, Status to status_changed, At and RepeatEveryH to
// scheduled. The zero Type is treated as manual.
type TriggerConfig struct {
	Type         TriggerType `json:"type"`
	Tag          string      `json:"tag,omitempty"`
	Status       string      `json:"status,omitempty"`
	At           *time.Time  `json:"at,omitempty"`
	RepeatEveryH int         `json:"repeat_every_h,omitempty"`
}

// EffectiveType resolves the empty default to TriggerManual.
func (c TriggerConfig) EffectiveType() TriggerType {
	if c.Type == "" {
		return TriggerManual
	}
	return c.Type
}

func (c TriggerConfig) validate(nodeID string) error {
	if c.Type != "" && !c.Type.IsValid() {
		return fmt.Errorf("node %s: unknown trigger type %q", nodeID, c.Type)
	}
	switch c.Type {
	case TriggerTagAdded:
		if c.Tag == "" {
			return fmt.Errorf("node %s: tag_added trigger requires a tag", nodeID)
		}
	case TriggerStatusChanged:
		if c.Status == "" {
			return fmt.Errorf("node %s: status_changed trigger requires a status", nodeID)
		}
	case TriggerScheduled:
		if c.At == nil {
			return fmt.Errorf("node %s: scheduled trigger requires a start time", nodeID)
		}
		if c.RepeatEveryH < 0 {
			return fmt.Errorf("node %s: repeat_every_h must not be negative", nodeID)
		}
	}
	return nil
}
