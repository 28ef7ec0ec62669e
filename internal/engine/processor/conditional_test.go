package processor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/engine/processor"
	"github.com/zjrosen/followup/internal/testutil"
	"github.com/zjrosen/followup/internal/workflow"
)

func TestConditionalSplit_FollowsYesBranch(t *testing.T) {
	w := testutil.ConditionalSplitWorkflow(t, "first_name", "Ada", "tpl-sms", "tpl-email")
	pctx := stepContext(w, testutil.NewContact("Ada", "Lovelace"))

	sr, err := (&processor.ConditionalSplit{}).Execute(context.Background(), w.Node("split"), pctx)

	require.NoError(t, err)
	require.NotNil(t, sr.NextNodeID)
	assert.Equal(t, "sms-yes", *sr.NextNodeID)
	assert.Equal(t, true, sr.ExecutionData[processor.KeyLastConditionResult])
	assert.Equal(t, true, sr.OutputData["result"])
	assert.Equal(t, "yes", sr.OutputData["branch"])
}

func TestConditionalSplit_FollowsNoBranch(t *testing.T) {
	w := testutil.ConditionalSplitWorkflow(t, "first_name", "Ada", "tpl-sms", "tpl-email")
	pctx := stepContext(w, testutil.NewContact("Grace", "Hopper"))

	sr, err := (&processor.ConditionalSplit{}).Execute(context.Background(), w.Node("split"), pctx)

	require.NoError(t, err)
	require.NotNil(t, sr.NextNodeID)
	assert.Equal(t, "email-no", *sr.NextNodeID)
	assert.Equal(t, false, sr.ExecutionData[processor.KeyLastConditionResult])
	assert.Equal(t, "no", sr.OutputData["branch"])
}

func TestConditionalSplit_MissingBranchCompletes(t *testing.T) {
	w := testutil.NewWorkflow(t, "Yes Only").
		ManualTrigger("start").
		Conditional("split", testutil.FieldEquals("first_name", "Ada")).
		SendSMS("sms-yes", "tpl-1").
		Edge("start", "split").
		EdgeOn("split", "sms-yes", workflow.HandleYes).
		Build()
	pctx := stepContext(w, testutil.NewContact("Grace", "Hopper"))

	sr, err := (&processor.ConditionalSplit{}).Execute(context.Background(), w.Node("split"), pctx)

	require.NoError(t, err)
	assert.Nil(t, sr.NextNodeID, "an unwired branch ends the enrollment gracefully")
	assert.Equal(t, "no", sr.OutputData["branch"])
}

func TestConditionalSplit_RejectsForeignPayload(t *testing.T) {
	w := testutil.LinearSendWorkflow(t, "tpl-1")
	pctx := stepContext(w, testutil.NewContact("Ada", "Lovelace"))
	node := &workflow.Node{
		ID:   "split",
		Type: workflow.NodeConditionalSplit,
		Data: &workflow.DelayPayload{Duration: 1, Unit: workflow.UnitHours},
	}

	_, err := (&processor.ConditionalSplit{}).Execute(context.Background(), node, pctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected payload")
}
