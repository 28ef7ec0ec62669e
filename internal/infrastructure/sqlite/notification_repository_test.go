package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/notification"
)

// TestNotificationRepository_Lifecycle exercises create, list, and
// mark-read.
func TestNotificationRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n1 := notification.New(notification.KindExecutionFailed, "Execution failed", "send_sms exhausted retries")
	n1.WorkflowID = "wf-1"
	n1.EnrollmentID = "enr-1"
	n1.ContactID = "contact-1"
	n2 := notification.New(notification.KindEnrollmentStopped, "Enrollment stopped", "Contact replied via sms")
	require.NoError(t, db.Notifications().Create(ctx, n1), "Create should succeed")
	require.NoError(t, db.Notifications().Create(ctx, n2), "Create should succeed")

	unread, err := db.Notifications().ListUnread(ctx)
	require.NoError(t, err, "ListUnread should succeed")
	require.Len(t, unread, 2)
	require.Equal(t, n2.ID, unread[0].ID, "newest notification should come first")
	require.Equal(t, notification.KindExecutionFailed, unread[1].Kind)
	require.Equal(t, "wf-1", unread[1].WorkflowID, "reference ids should round-trip")

	require.NoError(t, db.Notifications().MarkRead(ctx, []string{n1.ID}, time.Now()), "MarkRead should succeed")

	unread, err = db.Notifications().ListUnread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1, "read notifications should drop out of the unread list")
	require.Equal(t, n2.ID, unread[0].ID)

	require.NoError(t, db.Notifications().MarkRead(ctx, nil, time.Now()), "marking nothing is a no-op")
}
