package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/infrastructure/sqlite"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/workflow"
)

// LinearSendWorkflow builds the simplest runnable graph:
//
//	trigger → send_sms
func LinearSendWorkflow(t *testing.T, templateID string) *workflow.Workflow {
	t.Helper()
	return NewWorkflow(t, "Linear Send").
		ManualTrigger("start").
		SendSMS("sms-1", templateID).
		Edge("start", "sms-1").
		Build()
}

// DelayedSendWorkflow builds:
//
//	trigger → time_delay(1h) → send_sms
func DelayedSendWorkflow(t *testing.T, templateID string) *workflow.Workflow {
	t.Helper()
	return NewWorkflow(t, "Delayed Send").
		ManualTrigger("start").
		Delay("wait", 1, workflow.UnitHours).
		SendSMS("sms-1", templateID).
		Edge("start", "wait").
		Edge("wait", "sms-1").
		Build()
}

// ConditionalSplitWorkflow builds:
//
//	trigger → conditional_split ─yes→ send_sms
//	                            └─no→ send_email
func ConditionalSplitWorkflow(t *testing.T, field, value, smsTemplateID, emailTemplateID string) *workflow.Workflow {
	t.Helper()
	return NewWorkflow(t, "Conditional Split").
		ManualTrigger("start").
		Conditional("split", FieldEquals(field, value)).
		SendSMS("sms-yes", smsTemplateID).
		SendEmail("email-no", emailTemplateID).
		Edge("start", "split").
		EdgeOn("split", "sms-yes", workflow.HandleYes).
		EdgeOn("split", "email-no", workflow.HandleNo).
		Build()
}

// StopOnReplyWorkflow builds:
//
//	trigger → stop_on_reply(any) → send_sms
func StopOnReplyWorkflow(t *testing.T, templateID string) *workflow.Workflow {
	t.Helper()
	return NewWorkflow(t, "Stop On Reply").
		ManualTrigger("start").
		StopOnReply("gate", workflow.ReplyAny).
		SendSMS("sms-1", templateID).
		Edge("start", "gate").
		Edge("gate", "sms-1").
		Build()
}

// SubWorkflowPair builds a parent that calls a child:
//
//	parent: trigger → call_sub_workflow(child)
//	child:  sub_workflow trigger → send_sms → return_to_parent
func SubWorkflowPair(t *testing.T, templateID string, mode workflow.CallMode) (parent, child *workflow.Workflow) {
	t.Helper()
	child = NewWorkflow(t, "Child Sequence").
		SubWorkflowTrigger("child-start").
		SendSMS("child-sms", templateID).
		ReturnToParent("child-return").
		Edge("child-start", "child-sms").
		Edge("child-sms", "child-return").
		Build()
	parent = NewWorkflow(t, "Parent Sequence").
		ManualTrigger("start").
		CallSubWorkflow("call", child.ID, mode).
		Edge("start", "call").
		Build()
	return parent, child
}

// SeedTemplate persists a template with a body exercising placeholder
// rendering and returns it.
func SeedTemplate(t *testing.T, db *sqlite.DB, name string, channel message.Channel) *message.Template {
	t.Helper()
	subject := ""
	if channel == message.ChannelEmail {
		subject = "Checking in, {{first_name}}"
	}
	tpl := message.NewTemplate(name, channel, subject, "Hi {{first_name}}, just following up.")
	require.NoError(t, db.Templates().Create(context.Background(), tpl), "failed to seed template")
	return tpl
}

// SeedContact persists a contact built from NewContact and returns it.
func SeedContact(t *testing.T, db *sqlite.DB, firstName, lastName string, opts ...ContactOption) *contact.Contact {
	t.Helper()
	c := NewContact(firstName, lastName, opts...)
	require.NoError(t, db.Contacts().Create(context.Background(), c), "failed to seed contact")
	return c
}

// SeedWorkflow persists a built workflow and returns it.
func SeedWorkflow(t *testing.T, db *sqlite.DB, wf *workflow.Workflow) *workflow.Workflow {
	t.Helper()
	require.NoError(t, db.Workflows().Save(context.Background(), wf), "failed to seed workflow")
	return wf
}
