package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zjrosen/followup/internal/contact"
)

// Payload is the type-specific configuration of a node. Concrete payload
// structs are one-to-one with NodeType values.
type Payload interface {
	// nodeType reports which NodeType this payload configures.
	nodeType() NodeType
	// validate checks required keys and value ranges. The node id is
	// only used for error context.
	validate(nodeID string) error
}

// DecodePayload builds the payload struct for the given node type from
// raw JSON. A nil or empty raw decodes to the zero payload so that
// validation, not decoding, reports missing configuration.
func DecodePayload(t NodeType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case NodeTriggerStart:
		p = &TriggerPayload{}
	case NodeTimeDelay:
		p = &DelayPayload{}
	case NodeConditionalSplit:
		p = &ConditionalPayload{}
	case NodeSendSMS:
		p = &SendSMSPayload{}
	case NodeSendEmail:
		p = &SendEmailPayload{}
	case NodeUpdateStatus:
		p = &UpdateStatusPayload{}
	case NodeStopOnReply:
		p = &StopOnReplyPayload{}
	case NodeCallSubWorkflow:
		p = &CallSubWorkflowPayload{}
	case NodeReturnToParent:
		p = &ReturnToParentPayload{}
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return p, nil
}

// TriggerPayload configures a trigger_start node.
type TriggerPayload struct {
	Trigger TriggerConfig `json:"trigger"`
}

func (*TriggerPayload) nodeType() NodeType { return NodeTriggerStart }

func (p *TriggerPayload) validate(nodeID string) error {
	return p.Trigger.validate(nodeID)
}

// DelayUnit is the unit of a time_delay duration.
type DelayUnit string

const (
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
)

// DelayPayload configures a time_delay node.
type DelayPayload struct {
	Duration int       `json:"duration"`
	Unit     DelayUnit `json:"unit"`
}

func (*DelayPayload) nodeType() NodeType { return NodeTimeDelay }

// A zero duration is legal: the execution still yields and resumes on
// the next tick.
func (p *DelayPayload) validate(nodeID string) error {
	if p.Duration < 0 {
		return fmt.Errorf("node %s: delay duration must not be negative, got %d", nodeID, p.Duration)
	}
	switch p.Unit {
	case UnitMinutes, UnitHours, UnitDays:
		return nil
	}
	return fmt.Errorf("node %s: unknown delay unit %q", nodeID, p.Unit)
}

// ConditionalPayload configures a conditional_split node.
type ConditionalPayload struct {
	Expression ConditionExpression `json:"expression"`
}

func (*ConditionalPayload) nodeType() NodeType { return NodeConditionalSplit }

func (p *ConditionalPayload) validate(nodeID string) error {
	if err := p.Expression.validate(); err != nil {
		return fmt.Errorf("node %s: %w", nodeID, err)
	}
	return nil
}

// SendSMSPayload configures a send_sms node. FromNumber overrides the
// configured default sender when set.
type SendSMSPayload struct {
	TemplateID string `json:"template_id"`
	FromNumber string `json:"from_number,omitempty"`
	Label      string `json:"label,omitempty"`
}

func (*SendSMSPayload) nodeType() NodeType { return NodeSendSMS }

func (p *SendSMSPayload) validate(nodeID string) error {
	if strings.TrimSpace(p.TemplateID) == "" {
		return fmt.Errorf("node %s: send_sms requires template_id", nodeID)
	}
	return nil
}

// SendEmailPayload configures a send_email node.
type SendEmailPayload struct {
	TemplateID      string `json:"template_id"`
	SubjectOverride string `json:"subject_override,omitempty"`
	FromEmail       string `json:"from_email,omitempty"`
	Label           string `json:"label,omitempty"`
}

func (*SendEmailPayload) nodeType() NodeType { return NodeSendEmail }

func (p *SendEmailPayload) validate(nodeID string) error {
	if strings.TrimSpace(p.TemplateID) == "" {
		return fmt.Errorf("node %s: send_email requires template_id", nodeID)
	}
	return nil
}

// UpdateStatusPayload configures an update_status node.
type UpdateStatusPayload struct {
	Status contact.Status `json:"status"`
}

func (*UpdateStatusPayload) nodeType() NodeType { return NodeUpdateStatus }

func (p *UpdateStatusPayload) validate(nodeID string) error {
	if !p.Status.IsValid() {
		return fmt.Errorf("node %s: unknown contact status %q", nodeID, p.Status)
	}
	return nil
}

// ReplyChannel scopes which inbound messages satisfy a stop_on_reply
// gate. The empty value means any channel.
type ReplyChannel string

const (
	ReplyAny   ReplyChannel = "any"
	ReplySMS   ReplyChannel = "sms"
	ReplyEmail ReplyChannel = "email"
)

// StopOnReplyPayload configures a stop_on_reply node.
type StopOnReplyPayload struct {
	Channel ReplyChannel `json:"channel,omitempty"`
}

func (*StopOnReplyPayload) nodeType() NodeType { return NodeStopOnReply }

func (p *StopOnReplyPayload) validate(nodeID string) error {
	switch p.Channel {
	case "", ReplyAny, ReplySMS, ReplyEmail:
		return nil
	}
	return fmt.Errorf("node %s: unknown reply channel %q", nodeID, p.Channel)
}

// EffectiveChannel resolves the empty default to ReplyAny.
func (p *StopOnReplyPayload) EffectiveChannel() ReplyChannel {
	if p.Channel == "" {
		return ReplyAny
	}
	return p.Channel
}

// CallMode selects how call_sub_workflow treats the child enrollment.
type CallMode string

const (
	// ModeAsync starts the child and advances the parent immediately.
	ModeAsync CallMode = "async"
	// ModeSync also advances immediately but records that the child
	// result was still pending when the parent moved on.
	ModeSync CallMode = "sync"
)

// FailurePolicy decides what a failed child start does to the parent.
type FailurePolicy string

const (
	OnFailureContinue FailurePolicy = "continue"
	OnFailureFail     FailurePolicy = "fail"
)

// CallSubWorkflowPayload configures a call_sub_workflow node.
// InputMappings values may use {{contact.field}} placeholders resolved
// against the enrolled contact at call time. TimeoutS is recorded but
// not enforced.
type CallSubWorkflowPayload struct {
	TargetWorkflowID string            `json:"target_workflow_id"`
	InputMappings    map[string]string `json:"input_mappings,omitempty"`
	Mode             CallMode          `json:"mode,omitempty"`
	OnFailure        FailurePolicy     `json:"on_failure,omitempty"`
	TimeoutS         int               `json:"timeout_s,omitempty"`
}

func (*CallSubWorkflowPayload) nodeType() NodeType { return NodeCallSubWorkflow }

func (p *CallSubWorkflowPayload) validate(nodeID string) error {
	if strings.TrimSpace(p.TargetWorkflowID) == "" {
		return fmt.Errorf("node %s: call_sub_workflow requires target_workflow_id", nodeID)
	}
	switch p.Mode {
	case "", ModeAsync, ModeSync:
	default:
		return fmt.Errorf("node %s: unknown call mode %q", nodeID, p.Mode)
	}
	switch p.OnFailure {
	case "", OnFailureContinue, OnFailureFail:
	default:
		return fmt.Errorf("node %s: unknown failure policy %q", nodeID, p.OnFailure)
	}
	if p.TimeoutS < 0 {
		return fmt.Errorf("node %s: timeout_s must not be negative", nodeID)
	}
	return nil
}

// EffectiveMode resolves the empty default to ModeAsync.
func (p *CallSubWorkflowPayload) EffectiveMode() CallMode {
	if p.Mode == "" {
		return ModeAsync
	}
	return p.Mode
}

// EffectiveOnFailure resolves the empty default to OnFailureFail.
func (p *CallSubWorkflowPayload) EffectiveOnFailure() FailurePolicy {
	if p.OnFailure == "" {
		return OnFailureFail
	}
	return p.OnFailure
}

// ReturnToParentPayload configures a return_to_parent node. Outputs are
// recorded on the child enrollment for the parent to inspect.
type ReturnToParentPayload struct {
	Status  string            `json:"status,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`
}

func (*ReturnToParentPayload) nodeType() NodeType { return NodeReturnToParent }

func (p *ReturnToParentPayload) validate(string) error { return nil }
