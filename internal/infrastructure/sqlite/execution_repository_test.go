package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/enrollment"
)

// TestExecutionRepository_CreateAndGet verifies the execution round-trip
// including the data map.
func TestExecutionRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := seedWorkflow(t, db, "Exec Flow")
	c := seedContact(t, db, "Ada", "Lovelace")
	e := seedEnrollment(t, db, w.ID, c.ID)

	due := time.Now().Add(time.Hour)
	x := enrollment.NewExecution(e.ID, "start", due, 5)
	x.ExecutionData = map[string]any{"inputs": map[string]any{"source": "import"}}
	require.NoError(t, db.Executions().Create(ctx, x), "Create should succeed")

	got, err := db.Executions().Get(ctx, x.ID)
	require.NoError(t, err, "Get should succeed")
	require.Equal(t, e.ID, got.EnrollmentID)
	require.Equal(t, "start", got.CurrentNodeID)
	require.Equal(t, enrollment.ExecWaiting, got.Status)
	require.Equal(t, 5, got.MaxAttempts)
	require.NotNil(t, got.NextRunAt, "next_run_at should round-trip")
	require.Equal(t, due.Unix(), got.NextRunAt.Unix())
	inputs, ok := got.ExecutionData["inputs"].(map[string]any)
	require.True(t, ok, "execution data should decode as a nested map")
	require.Equal(t, "import", inputs["source"])

	byEnrollment, err := db.Executions().GetByEnrollment(ctx, e.ID)
	require.NoError(t, err, "GetByEnrollment should succeed")
	require.Equal(t, x.ID, byEnrollment.ID)
}

// TestExecutionRepository_GetNotFound verifies the typed error.
func TestExecutionRepository_GetNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Executions().Get(context.Background(), "missing")
	var nf *enrollment.ExecutionNotFoundError
	require.ErrorAs(t, err, &nf, "missing execution should return ExecutionNotFoundError")
}

// TestExecutionRepository_Update verifies cursor, schedule, and lease
// fields persist.
func TestExecutionRepository_Update(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := seedWorkflow(t, db, "Update Flow")
	c := seedContact(t, db, "Grace", "Hopper")
	e := seedEnrollment(t, db, w.ID, c.ID)
	x := seedExecution(t, db, e.ID, "start", time.Now())

	require.NoError(t, x.TransitionTo(enrollment.ExecProcessing))
	x.CurrentNodeID = "wait"
	x.Attempts = 2
	x.ErrorMessage = "provider timeout"
	x.LeaseHolder = "worker-1"
	lease := time.Now().Add(5 * time.Minute)
	x.LeaseExpiresAt = &lease
	x.MergeData(map[string]any{"last_condition": true})
	require.NoError(t, db.Executions().Update(ctx, x), "Update should succeed")

	got, err := db.Executions().Get(ctx, x.ID)
	require.NoError(t, err, "Get should succeed")
	require.Equal(t, "wait", got.CurrentNodeID)
	require.Equal(t, enrollment.ExecProcessing, got.Status)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, "provider timeout", got.ErrorMessage)
	require.Equal(t, "worker-1", got.LeaseHolder)
	require.NotNil(t, got.LeaseExpiresAt)
	require.Equal(t, lease.Unix(), got.LeaseExpiresAt.Unix())
	require.Equal(t, true, got.ExecutionData["last_condition"])

	missing := enrollment.NewExecution("nope", "start", time.Now(), 3)
	err = db.Executions().Update(ctx, missing)
	var nf *enrollment.ExecutionNotFoundError
	require.ErrorAs(t, err, &nf, "updating a missing execution should return ExecutionNotFoundError")
}

// TestExecutionRepository_ClaimDue verifies due rows are claimed with
// processing status and a lease, and future rows stay untouched.
func TestExecutionRepository_ClaimDue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	w := seedWorkflow(t, db, "Claim Flow")
	due := seedExecution(t, db, seedEnrollment(t, db, w.ID, seedContact(t, db, "Due", "Now").ID).ID, "start", now.Add(-time.Minute))
	future := seedExecution(t, db, seedEnrollment(t, db, w.ID, seedContact(t, db, "Due", "Later").ID).ID, "start", now.Add(time.Hour))

	claimed, err := db.Executions().ClaimDue(ctx, now, 10, "worker-1", 5*time.Minute)
	require.NoError(t, err, "ClaimDue should succeed")
	require.Len(t, claimed, 1, "only the due execution should be claimed")
	require.Equal(t, due.ID, claimed[0].ID)
	require.Equal(t, enrollment.ExecProcessing, claimed[0].Status, "claimed rows are processing")
	require.Equal(t, "worker-1", claimed[0].LeaseHolder)
	require.NotNil(t, claimed[0].LeaseExpiresAt, "claimed rows carry a lease")
	require.Equal(t, now.Add(5*time.Minute).Unix(), claimed[0].LeaseExpiresAt.Unix())

	untouched, err := db.Executions().Get(ctx, future.ID)
	require.NoError(t, err)
	require.Equal(t, enrollment.ExecWaiting, untouched.Status, "future execution should stay waiting")

	again, err := db.Executions().ClaimDue(ctx, now, 10, "worker-2", 5*time.Minute)
	require.NoError(t, err, "second ClaimDue should succeed")
	require.Empty(t, again, "a claimed execution must not be claimed twice while its lease lives")
}

// TestExecutionRepository_ClaimDueReclaimsExpiredLease verifies that
// abandoned processing rows become claimable once the lease passes.
func TestExecutionRepository_ClaimDueReclaimsExpiredLease(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	w := seedWorkflow(t, db, "Reclaim Flow")
	c := seedContact(t, db, "Aban", "Doned")
	e := seedEnrollment(t, db, w.ID, c.ID)
	x := seedExecution(t, db, e.ID, "start", now.Add(-time.Hour))

	claimed, err := db.Executions().ClaimDue(ctx, now, 10, "crashed-worker", time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Before the lease expires nobody else may claim it.
	early, err := db.Executions().ClaimDue(ctx, now.Add(30*time.Second), 10, "worker-2", time.Minute)
	require.NoError(t, err)
	require.Empty(t, early, "live lease should block reclaim")

	// After expiry the row is claimable again.
	late, err := db.Executions().ClaimDue(ctx, now.Add(2*time.Minute), 10, "worker-2", time.Minute)
	require.NoError(t, err)
	require.Len(t, late, 1, "expired lease should be reclaimable")
	require.Equal(t, x.ID, late[0].ID)
	require.Equal(t, "worker-2", late[0].LeaseHolder, "new holder should own the lease")
}

// TestExecutionRepository_ClaimDueHonorsLimit verifies oldest-first
// ordering and the batch limit.
func TestExecutionRepository_ClaimDueHonorsLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	w := seedWorkflow(t, db, "Limit Flow")
	var ids []string
	for i := 0; i < 5; i++ {
		c := seedContact(t, db, "Contact", fmt.Sprintf("%d", i))
		e := seedEnrollment(t, db, w.ID, c.ID)
		x := seedExecution(t, db, e.ID, "start", now.Add(-time.Duration(5-i)*time.Minute))
		ids = append(ids, x.ID)
	}

	claimed, err := db.Executions().ClaimDue(ctx, now, 2, "worker-1", 5*time.Minute)
	require.NoError(t, err, "ClaimDue should succeed")
	require.Len(t, claimed, 2, "limit should cap the batch")
	require.Equal(t, ids[0], claimed[0].ID, "oldest due execution claims first")
	require.Equal(t, ids[1], claimed[1].ID)

	count, err := db.Executions().DueCount(ctx, now)
	require.NoError(t, err, "DueCount should succeed")
	require.Equal(t, 3, count, "unclaimed due executions should remain countable")
}

// TestExecutionRepository_ClaimDueNoDoubleClaim runs competing claimers
// and verifies no execution is handed to two of them.
func TestExecutionRepository_ClaimDueNoDoubleClaim(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	w := seedWorkflow(t, db, "Race Flow")
	total := 8
	for i := 0; i < total; i++ {
		c := seedContact(t, db, "Racer", fmt.Sprintf("%d", i))
		e := seedEnrollment(t, db, w.ID, c.ID)
		seedExecution(t, db, e.ID, "start", now.Add(-time.Minute))
	}

	type claimResult struct {
		holder  string
		claimed []*enrollment.Execution
		err     error
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	var results []claimResult
	for _, holder := range []string{"worker-1", "worker-2", "worker-3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := db.Executions().ClaimDue(ctx, now, 5, holder, 5*time.Minute)
			mu.Lock()
			results = append(results, claimResult{holder: holder, claimed: claimed, err: err})
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := map[string]string{}
	for _, res := range results {
		require.NoError(t, res.err, "concurrent ClaimDue should succeed")
		for _, x := range res.claimed {
			prev, dup := seen[x.ID]
			require.False(t, dup, "execution %s claimed by both %s and %s", x.ID, prev, res.holder)
			seen[x.ID] = res.holder
		}
	}
	require.Len(t, seen, total, "every due execution should be claimed exactly once")

	count, err := db.Executions().DueCount(ctx, now)
	require.NoError(t, err)
	require.Zero(t, count, "nothing should remain due after the claims")
}

// TestExecutionRepository_DueCountIncludesExpiredLeases verifies the
// backlog counts abandoned rows too.
func TestExecutionRepository_DueCountIncludesExpiredLeases(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	w := seedWorkflow(t, db, "Backlog Flow")
	c := seedContact(t, db, "Back", "Log")
	e := seedEnrollment(t, db, w.ID, c.ID)
	seedExecution(t, db, e.ID, "start", now.Add(-time.Minute))

	claimed, err := db.Executions().ClaimDue(ctx, now, 10, "worker-1", time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	count, err := db.Executions().DueCount(ctx, now)
	require.NoError(t, err)
	require.Zero(t, count, "freshly claimed row is not due")

	count, err = db.Executions().DueCount(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, count, "expired lease should count as due again")
}
