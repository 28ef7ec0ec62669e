package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/workflow"
)

// newTestDB returns a migrated in-memory database that closes with the
// test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewMemoryDB()
	require.NoError(t, err, "NewMemoryDB should succeed")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedWorkflow saves a minimal manual-trigger workflow: trigger -> delay.
func seedWorkflow(t *testing.T, db *DB, name string) *workflow.Workflow {
	t.Helper()
	w := workflow.New(name)
	w.Nodes = []workflow.Node{
		{
			ID:         "start",
			WorkflowID: w.ID,
			Type:       workflow.NodeTriggerStart,
			Data:       &workflow.TriggerPayload{Trigger: workflow.TriggerConfig{Type: workflow.TriggerManual}},
		},
		{
			ID:         "wait",
			WorkflowID: w.ID,
			Type:       workflow.NodeTimeDelay,
			Data:       &workflow.DelayPayload{Duration: 1, Unit: workflow.UnitHours},
		},
	}
	w.Edges = []workflow.Edge{
		{ID: "e1", WorkflowID: w.ID, SourceID: "start", TargetID: "wait"},
	}
	require.NoError(t, db.Workflows().Save(context.Background(), w), "seed workflow save should succeed")
	return w
}

// seedContact creates a contact row.
func seedContact(t *testing.T, db *DB, firstName, lastName string) *contact.Contact {
	t.Helper()
	c := contact.New(firstName, lastName)
	require.NoError(t, db.Contacts().Create(context.Background(), c), "seed contact create should succeed")
	return c
}

// seedEnrollment creates an active enrollment for the pair.
func seedEnrollment(t *testing.T, db *DB, workflowID, contactID string) *enrollment.Enrollment {
	t.Helper()
	e := enrollment.New(workflowID, contactID)
	require.NoError(t, db.Enrollments().Create(context.Background(), e), "seed enrollment create should succeed")
	return e
}

// seedExecution creates a waiting execution due at runAt.
func seedExecution(t *testing.T, db *DB, enrollmentID, nodeID string, runAt time.Time) *enrollment.Execution {
	t.Helper()
	x := enrollment.NewExecution(enrollmentID, nodeID, runAt, 3)
	require.NoError(t, db.Executions().Create(context.Background(), x), "seed execution create should succeed")
	return x
}
