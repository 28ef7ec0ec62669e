package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/workflow"
)

// TestWorkflowRepository_SaveAndGet verifies a workflow round-trips with
// its full graph.
func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := workflow.New("Onboarding")
	w.Description = "New lead follow-up"
	w.Nodes = []workflow.Node{
		{
			ID:         "start",
			WorkflowID: w.ID,
			Type:       workflow.NodeTriggerStart,
			Position:   workflow.Position{X: 10, Y: 20},
			Data:       &workflow.TriggerPayload{Trigger: workflow.TriggerConfig{Type: workflow.TriggerTagAdded, Tag: "hot-lead"}},
		},
		{
			ID:         "split",
			WorkflowID: w.ID,
			Type:       workflow.NodeConditionalSplit,
			Data: &workflow.ConditionalPayload{Expression: workflow.ConditionExpression{
				Groups: []workflow.ConditionGroup{{
					Conditions:      []workflow.Condition{{Field: "status", Operator: workflow.OpEquals, Value: "new"}},
					LogicalOperator: workflow.LogicAnd,
				}},
				GroupOperator: workflow.LogicAnd,
			}},
		},
		{
			ID:         "sms",
			WorkflowID: w.ID,
			Type:       workflow.NodeSendSMS,
			Data:       &workflow.SendSMSPayload{TemplateID: "tpl-1"},
		},
	}
	w.Edges = []workflow.Edge{
		{ID: "e1", WorkflowID: w.ID, SourceID: "start", TargetID: "split"},
		{ID: "e2", WorkflowID: w.ID, SourceID: "split", TargetID: "sms", SourceHandle: workflow.HandleYes, Label: "Yes"},
	}

	require.NoError(t, db.Workflows().Save(ctx, w), "Save should succeed")

	got, err := db.Workflows().Get(ctx, w.ID)
	require.NoError(t, err, "Get should succeed")
	require.Equal(t, "Onboarding", got.Name)
	require.Equal(t, "New lead follow-up", got.Description)
	require.True(t, got.Enabled, "new workflows should be enabled")
	require.Len(t, got.Nodes, 3, "all nodes should load")
	require.Len(t, got.Edges, 2, "all edges should load")

	start := got.Node("start")
	require.NotNil(t, start, "start node should exist")
	require.Equal(t, workflow.Position{X: 10, Y: 20}, start.Position)
	trigger, ok := start.Data.(*workflow.TriggerPayload)
	require.True(t, ok, "trigger node should decode to TriggerPayload")
	require.Equal(t, workflow.TriggerTagAdded, trigger.Trigger.Type)
	require.Equal(t, "hot-lead", trigger.Trigger.Tag)

	require.Equal(t, workflow.HandleYes, got.Edges[1].SourceHandle, "edge handle should round-trip")
	require.Equal(t, w.ID, got.Edges[1].WorkflowID, "edge should carry its workflow id")
}

// TestWorkflowRepository_SaveReplacesGraph verifies a second save swaps
// the whole graph instead of merging.
func TestWorkflowRepository_SaveReplacesGraph(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := seedWorkflow(t, db, "Replace Me")

	w.Nodes = []workflow.Node{
		{
			ID:         "start",
			WorkflowID: w.ID,
			Type:       workflow.NodeTriggerStart,
			Data:       &workflow.TriggerPayload{Trigger: workflow.TriggerConfig{Type: workflow.TriggerManual}},
		},
		{
			ID:         "status",
			WorkflowID: w.ID,
			Type:       workflow.NodeUpdateStatus,
			Data:       &workflow.UpdateStatusPayload{Status: "contacted"},
		},
	}
	w.Edges = []workflow.Edge{
		{ID: "e-new", WorkflowID: w.ID, SourceID: "start", TargetID: "status"},
	}
	require.NoError(t, db.Workflows().Save(ctx, w), "second Save should succeed")

	got, err := db.Workflows().Get(ctx, w.ID)
	require.NoError(t, err, "Get should succeed")
	require.Len(t, got.Nodes, 2, "old nodes should be gone")
	require.Nil(t, got.Node("wait"), "replaced node should not survive")
	require.NotNil(t, got.Node("status"), "new node should be present")
	require.Len(t, got.Edges, 1)
	require.Equal(t, "e-new", got.Edges[0].ID, "old edges should be gone")
}

// TestWorkflowRepository_GetNotFound verifies the typed error.
func TestWorkflowRepository_GetNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Workflows().Get(context.Background(), "missing")
	var nf *workflow.NotFoundError
	require.ErrorAs(t, err, &nf, "missing workflow should return NotFoundError")
	require.Equal(t, "missing", nf.ID)
}

// TestWorkflowRepository_GetByName verifies lookup through the unique
// name.
func TestWorkflowRepository_GetByName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := seedWorkflow(t, db, "Named Flow")

	got, err := db.Workflows().GetByName(ctx, "Named Flow")
	require.NoError(t, err, "GetByName should succeed")
	require.Equal(t, w.ID, got.ID)
	require.Len(t, got.Nodes, 2, "graph should load through GetByName too")

	_, err = db.Workflows().GetByName(ctx, "No Such Flow")
	var nf *workflow.NotFoundError
	require.ErrorAs(t, err, &nf, "unknown name should return NotFoundError")
}

// TestWorkflowRepository_ListFiltersEnabled verifies the enabled filter.
func TestWorkflowRepository_ListFiltersEnabled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := seedWorkflow(t, db, "A")
	b := seedWorkflow(t, db, "B")
	require.NoError(t, db.Workflows().SetEnabled(ctx, b.ID, false), "SetEnabled should succeed")

	all, err := db.Workflows().List(ctx, workflow.ListFilter{})
	require.NoError(t, err, "List should succeed")
	require.Len(t, all, 2, "unfiltered list should include both")

	enabled := true
	on, err := db.Workflows().List(ctx, workflow.ListFilter{Enabled: &enabled})
	require.NoError(t, err, "filtered List should succeed")
	require.Len(t, on, 1, "only one workflow is still enabled")
	require.Equal(t, a.ID, on[0].ID)
}

// TestWorkflowRepository_Delete verifies deletion and the cascade to the
// graph tables.
func TestWorkflowRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := seedWorkflow(t, db, "Doomed")
	require.NoError(t, db.Workflows().Delete(ctx, w.ID), "Delete should succeed")

	_, err := db.Workflows().Get(ctx, w.ID)
	var nf *workflow.NotFoundError
	require.ErrorAs(t, err, &nf, "deleted workflow should be gone")

	var nodes int
	err = db.conn.QueryRow("SELECT COUNT(*) FROM workflow_nodes WHERE workflow_id = ?", w.ID).Scan(&nodes)
	require.NoError(t, err)
	require.Zero(t, nodes, "nodes should cascade on delete")

	err = db.Workflows().Delete(ctx, w.ID)
	require.ErrorAs(t, err, &nf, "deleting twice should return NotFoundError")
}

// TestWorkflowRepository_SetEnabledNotFound verifies the typed error on
// unknown ids.
func TestWorkflowRepository_SetEnabledNotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Workflows().SetEnabled(context.Background(), "missing", true)
	var nf *workflow.NotFoundError
	require.ErrorAs(t, err, &nf, "unknown id should return NotFoundError")
}
