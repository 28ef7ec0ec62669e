package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/workflow"
)

// WorkflowBuilder accumulates nodes and edges and produces a validated
// workflow graph.
type WorkflowBuilder struct {
	t       *testing.T
	wf      *workflow.Workflow
	edgeSeq int
}

// NewWorkflow creates a builder for an enabled workflow with the given name.
func NewWorkflow(t *testing.T, name string) *WorkflowBuilder {
	t.Helper()
	return &WorkflowBuilder{t: t, wf: workflow.New(name)}
}

// ID overrides the generated workflow id.
func (b *WorkflowBuilder) ID(id string) *WorkflowBuilder {
	b.wf.ID = id
	return b
}

// Disabled marks the workflow disabled.
func (b *WorkflowBuilder) Disabled() *WorkflowBuilder {
	b.wf.Enabled = false
	return b
}

// Node adds a node with an explicit payload.
func (b *WorkflowBuilder) Node(id string, typ workflow.NodeType, data workflow.Payload) *WorkflowBuilder {
	b.wf.Nodes = append(b.wf.Nodes, workflow.Node{
		ID:   id,
		Type: typ,
		Data: data,
	})
	return b
}

// Trigger adds a trigger_start node with the given trigger configuration.
func (b *WorkflowBuilder) Trigger(id string, cfg workflow.TriggerConfig) *WorkflowBuilder {
	return b.Node(id, workflow.NodeTriggerStart, &workflow.TriggerPayload{Trigger: cfg})
}

// ManualTrigger adds a trigger_start node with the manual trigger type.
func (b *WorkflowBuilder) ManualTrigger(id string) *WorkflowBuilder {
	return b.Trigger(id, workflow.TriggerConfig{Type: workflow.TriggerManual})
}

// SubWorkflowTrigger adds a trigger_start node callable only from a parent.
func (b *WorkflowBuilder) SubWorkflowTrigger(id string) *WorkflowBuilder {
	return b.Trigger(id, workflow.TriggerConfig{Type: workflow.TriggerSubWorkflow})
}

// Delay adds a time_delay node.
func (b *WorkflowBuilder) Delay(id string, duration int, unit workflow.DelayUnit) *WorkflowBuilder {
	return b.Node(id, workflow.NodeTimeDelay, &workflow.DelayPayload{Duration: duration, Unit: unit})
}

// SendSMS adds a send_sms node for the given template.
func (b *WorkflowBuilder) SendSMS(id, templateID string) *WorkflowBuilder {
	return b.Node(id, workflow.NodeSendSMS, &workflow.SendSMSPayload{TemplateID: templateID})
}

// SendEmail adds a send_email node for the given template.
func (b *WorkflowBuilder) SendEmail(id, templateID string) *WorkflowBuilder {
	return b.Node(id, workflow.NodeSendEmail, &workflow.SendEmailPayload{TemplateID: templateID})
}

// Conditional adds a conditional_split node with the given expression.
func (b *WorkflowBuilder) Conditional(id string, expr workflow.ConditionExpression) *WorkflowBuilder {
	return b.Node(id, workflow.NodeConditionalSplit, &workflow.ConditionalPayload{Expression: expr})
}

// UpdateStatus adds an update_status node.
func (b *WorkflowBuilder) UpdateStatus(id string, status contact.Status) *WorkflowBuilder {
	return b.Node(id, workflow.NodeUpdateStatus, &workflow.UpdateStatusPayload{Status: status})
}

// StopOnReply adds a stop_on_reply node scoped to the given channel
// ("" means any channel).
func (b *WorkflowBuilder) StopOnReply(id string, channel workflow.ReplyChannel) *WorkflowBuilder {
	return b.Node(id, workflow.NodeStopOnReply, &workflow.StopOnReplyPayload{Channel: channel})
}

// CallSubWorkflow adds a call_sub_workflow node targeting the given workflow.
func (b *WorkflowBuilder) CallSubWorkflow(id, targetWorkflowID string, mode workflow.CallMode) *WorkflowBuilder {
	return b.Node(id, workflow.NodeCallSubWorkflow, &workflow.CallSubWorkflowPayload{
		TargetWorkflowID: targetWorkflowID,
		Mode:             mode,
	})
}

// ReturnToParent adds a return_to_parent node.
func (b *WorkflowBuilder) ReturnToParent(id string) *WorkflowBuilder {
	return b.Node(id, workflow.NodeReturnToParent, &workflow.ReturnToParentPayload{})
}

// Edge connects source to target on the default handle.
func (b *WorkflowBuilder) Edge(source, target string) *WorkflowBuilder {
	return b.EdgeOn(source, target, workflow.HandleDefault)
}

// EdgeOn connects source to target on a named handle ("yes"/"no").
func (b *WorkflowBuilder) EdgeOn(source, target, handle string) *WorkflowBuilder {
	b.edgeSeq++
	b.wf.Edges = append(b.wf.Edges, workflow.Edge{
		ID:           fmt.Sprintf("e%d", b.edgeSeq),
		SourceID:     source,
		TargetID:     target,
		SourceHandle: handle,
	})
	return b
}

// Build stamps workflow ids onto nodes and edges and validates the graph.
func (b *WorkflowBuilder) Build() *workflow.Workflow {
	b.t.Helper()
	wf := b.stamp()
	require.NoError(b.t, wf.Validate(), "built workflow must validate")
	return wf
}

// BuildInvalid stamps ids but skips validation, for tests that need a
// malformed graph.
func (b *WorkflowBuilder) BuildInvalid() *workflow.Workflow {
	return b.stamp()
}

func (b *WorkflowBuilder) stamp() *workflow.Workflow {
	for i := range b.wf.Nodes {
		b.wf.Nodes[i].WorkflowID = b.wf.ID
	}
	for i := range b.wf.Edges {
		b.wf.Edges[i].WorkflowID = b.wf.ID
	}
	return b.wf
}

// FieldEquals returns a one-condition expression comparing a contact
// field for equality.
func FieldEquals(field, value string) workflow.ConditionExpression {
	return workflow.ConditionExpression{
		Groups: []workflow.ConditionGroup{
			{
				Conditions: []workflow.Condition{
					{Field: field, Operator: workflow.OpEquals, Value: value},
				},
				LogicalOperator: workflow.LogicAnd,
			},
		},
		GroupOperator: workflow.LogicAnd,
	}
}
