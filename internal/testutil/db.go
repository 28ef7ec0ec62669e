// Package testutil provides shared fixtures for store-backed tests: an
// in-memory database, a workflow graph builder, and contact factories.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/infrastructure/sqlite"
)

// NewTestDB creates an in-memory database with the full schema applied.
// The database closes automatically when the test ends.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewMemoryDB()
	require.NoError(t, err, "failed to open in-memory database")
	t.Cleanup(func() { _ = db.Close() })
	return db
}
