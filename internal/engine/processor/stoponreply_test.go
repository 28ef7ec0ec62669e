package processor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/engine/processor"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/testutil"
	"github.com/zjrosen/followup/internal/workflow"
)

func recordInbound(t *testing.T, f *fixture, contactID string, ch message.Channel, at time.Time) {
	t.Helper()
	m := message.NewInbound(contactID, ch, "got your note")
	m.CreatedAt = at
	require.NoError(t, f.db.Messages().Create(context.Background(), m))
}

func TestStopOnReply_StopsOnReply(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedContact(t, f.db, "Ada", "Lovelace")
	w := testutil.StopOnReplyWorkflow(t, "tpl-1")
	pctx := stepContext(w, c)
	recordInbound(t, f, c.ID, message.ChannelSMS, time.Now().Add(time.Second))

	sr, err := (&processor.StopOnReply{Messages: f.db.Messages()}).
		Execute(context.Background(), w.Node("gate"), pctx)

	require.NoError(t, err)
	assert.True(t, sr.StopEnrollment)
	assert.Equal(t, "Contact replied via sms", sr.StopReason)
	assert.Equal(t, true, sr.OutputData["replied"])
	assert.Equal(t, "sms", sr.OutputData["channel"])
	assert.Nil(t, sr.NextNodeID)
}

func TestStopOnReply_PassesWhenSilent(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedContact(t, f.db, "Ada", "Lovelace")
	w := testutil.StopOnReplyWorkflow(t, "tpl-1")
	pctx := stepContext(w, c)

	sr, err := (&processor.StopOnReply{Messages: f.db.Messages()}).
		Execute(context.Background(), w.Node("gate"), pctx)

	require.NoError(t, err)
	assert.False(t, sr.StopEnrollment)
	require.NotNil(t, sr.NextNodeID)
	assert.Equal(t, "sms-1", *sr.NextNodeID)
	assert.Equal(t, false, sr.OutputData["replied"])
}

func TestStopOnReply_ChannelFilter(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedContact(t, f.db, "Ada", "Lovelace")
	w := testutil.NewWorkflow(t, "Email Gate").
		ManualTrigger("start").
		StopOnReply("gate", workflow.ReplyEmail).
		SendSMS("sms-1", "tpl-1").
		Edge("start", "gate").
		Edge("gate", "sms-1").
		Build()
	pctx := stepContext(w, c)
	gate := (&processor.StopOnReply{Messages: f.db.Messages()})

	recordInbound(t, f, c.ID, message.ChannelSMS, time.Now().Add(time.Second))
	sr, err := gate.Execute(context.Background(), w.Node("gate"), pctx)
	require.NoError(t, err)
	assert.False(t, sr.StopEnrollment, "an sms reply must not satisfy an email-only gate")

	recordInbound(t, f, c.ID, message.ChannelEmail, time.Now().Add(2*time.Second))
	sr, err = gate.Execute(context.Background(), w.Node("gate"), pctx)
	require.NoError(t, err)
	assert.True(t, sr.StopEnrollment)
	assert.Equal(t, "Contact replied via email", sr.StopReason)
}

func TestStopOnReply_IgnoresRepliesBeforeEnrollment(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedContact(t, f.db, "Ada", "Lovelace")
	w := testutil.StopOnReplyWorkflow(t, "tpl-1")
	pctx := stepContext(w, c)
	recordInbound(t, f, c.ID, message.ChannelSMS, time.Now().Add(-time.Hour))

	sr, err := (&processor.StopOnReply{Messages: f.db.Messages()}).
		Execute(context.Background(), w.Node("gate"), pctx)

	require.NoError(t, err)
	assert.False(t, sr.StopEnrollment, "only replies after enrollment count")
}
