package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/enrollment"
)

// TestExecutionLogRepository_AppendOrder verifies rows read back in
// append order even when written within the same second.
func TestExecutionLogRepository_AppendOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := seedWorkflow(t, db, "Log Flow")
	c := seedContact(t, db, "Log", "Contact")
	e := seedEnrollment(t, db, w.ID, c.ID)
	x := seedExecution(t, db, e.ID, "start", time.Now())

	for i := 0; i < 4; i++ {
		l := enrollment.NewLog(x.ID, e.ID, fmt.Sprintf("node-%d", i), "time_delay")
		l.Input = map[string]any{"step": float64(i)}
		require.NoError(t, db.ExecutionLogs().Append(ctx, l), "Append should succeed")
	}

	logs, err := db.ExecutionLogs().ListByExecution(ctx, x.ID)
	require.NoError(t, err, "ListByExecution should succeed")
	require.Len(t, logs, 4)
	for i, l := range logs {
		require.Equal(t, fmt.Sprintf("node-%d", i), l.NodeID, "logs should come back in append order")
		require.Equal(t, float64(i), l.Input["step"], "input snapshot should round-trip")
	}

	byEnrollment, err := db.ExecutionLogs().ListByEnrollment(ctx, e.ID)
	require.NoError(t, err, "ListByEnrollment should succeed")
	require.Len(t, byEnrollment, 4)
}

// TestExecutionLogRepository_FailureRow verifies error details persist.
func TestExecutionLogRepository_FailureRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := seedWorkflow(t, db, "Log Fail Flow")
	c := seedContact(t, db, "Log", "Failure")
	e := seedEnrollment(t, db, w.ID, c.ID)
	x := seedExecution(t, db, e.ID, "start", time.Now())

	l := enrollment.NewLog(x.ID, e.ID, "sms-1", "send_sms")
	l.Status = enrollment.LogFailed
	l.Error = "provider rejected the number"
	l.Output = map[string]any{"provider": "twilio"}
	l.DurationMS = 230
	require.NoError(t, db.ExecutionLogs().Append(ctx, l))

	logs, err := db.ExecutionLogs().ListByExecution(ctx, x.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, enrollment.LogFailed, logs[0].Status)
	require.Equal(t, enrollment.ActionExecute, logs[0].Action)
	require.Equal(t, "provider rejected the number", logs[0].Error)
	require.Equal(t, "twilio", logs[0].Output["provider"])
	require.Equal(t, int64(230), logs[0].DurationMS)
}
