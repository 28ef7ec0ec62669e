package sqlite

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/notification"
	"github.com/zjrosen/followup/internal/settings"
	"github.com/zjrosen/followup/internal/workflow"
)

// openTestDB opens a file-backed database under t.TempDir and closes it
// with the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "followup.db")
	db, err := NewDB(dbPath)
	require.NoError(t, err, "opening database at %s", dbPath)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_CreatesFileAndParents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "engine", "followup.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "missing parent directories should be created")
	defer db.Close()

	info, err := os.Stat(dbPath)
	require.NoError(t, err, "database file should exist after open")
	require.False(t, info.IsDir())

	dirInfo, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	require.True(t, dirInfo.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm(),
			"state directory holds contact data and must stay private")
	}
}

func TestNewDB_RunsMigrations(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{
		"workflows", "workflow_nodes", "workflow_edges",
		"contacts", "tags", "contact_tags", "contact_custom_fields",
		"contact_events", "templates", "messages", "settings",
		"workflow_enrollments", "workflow_executions", "workflow_execution_logs",
		"notifications",
	} {
		var name string
		err := db.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist after migrations", table)
	}
}

func TestNewDB_PreMigrationBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "followup.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	_, err = db1.conn.Exec(
		"INSERT INTO workflows (id, name, description, enabled, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		"wf-1", "Welcome Sequence", "", 1, 1000, 1000,
	)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	// Reopening an existing file snapshots it before migrations run.
	db2, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "reopen should leave a pre-migration backup")
	require.Greater(t, info.Size(), int64(0), "backup should carry the old contents")
}

func TestNewDB_ConnectionPragmas(t *testing.T) {
	db := openTestDB(t)

	// The daemon and the CLI open the same file, so WAL and a busy
	// timeout are load-bearing here, not tuning.
	tests := []struct {
		pragma string
		want   string
	}{
		{pragma: "journal_mode", want: "wal"},
		{pragma: "foreign_keys", want: "1"},
		{pragma: "busy_timeout", want: "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			var got string
			require.NoError(t, db.conn.QueryRow("PRAGMA "+tt.pragma).Scan(&got))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDB_Close(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "pool should be unusable after Close")
}

// TestDB_Repositories verifies that every repository accessor returns an
// implementation of its domain interface.
func TestDB_Repositories(t *testing.T) {
	db := openTestDB(t)

	var workflows workflow.Repository = db.Workflows()
	require.NotNil(t, workflows, "Workflows should not return nil")

	var contacts contact.Repository = db.Contacts()
	require.NotNil(t, contacts, "Contacts should not return nil")

	var events contact.EventRepository = db.ContactEvents()
	require.NotNil(t, events, "ContactEvents should not return nil")

	var templates message.TemplateRepository = db.Templates()
	require.NotNil(t, templates, "Templates should not return nil")

	var messages message.Repository = db.Messages()
	require.NotNil(t, messages, "Messages should not return nil")

	var setts settings.Repository = db.Settings()
	require.NotNil(t, setts, "Settings should not return nil")

	var enrollments enrollment.Repository = db.Enrollments()
	require.NotNil(t, enrollments, "Enrollments should not return nil")

	var executions enrollment.ExecutionRepository = db.Executions()
	require.NotNil(t, executions, "Executions should not return nil")

	var logs enrollment.LogRepository = db.ExecutionLogs()
	require.NotNil(t, logs, "ExecutionLogs should not return nil")

	var notifications notification.Repository = db.Notifications()
	require.NotNil(t, notifications, "Notifications should not return nil")
}

func TestDB_Connection(t *testing.T) {
	db := openTestDB(t)

	conn := db.Connection()
	require.NotNil(t, conn)
	require.NoError(t, conn.Ping(), "raw pool should be usable for health checks")
}

func TestNewDB_ReopenWhileOpen(t *testing.T) {
	// The CLI opens the database while the daemon holds it; WAL makes
	// that safe.
	dbPath := filepath.Join(t.TempDir(), "followup.db")

	first, err := NewDB(dbPath)
	require.NoError(t, err)
	defer first.Close()

	second, err := NewDB(dbPath)
	require.NoError(t, err, "second open of a live database should succeed")
	defer second.Close()

	for _, db := range []*DB{first, second} {
		var count int
		require.NoError(t, db.conn.QueryRow("SELECT COUNT(*) FROM workflows").Scan(&count))
		require.Zero(t, count)
	}
}

// TestNewDB_InvalidPath verifies that NewDB returns an error when the parent
// path is occupied by a regular file.
func TestNewDB_InvalidPath(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0600))

	_, err := NewDB(filepath.Join(blocker, "test.db"))
	require.Error(t, err, "NewDB should fail when the parent path is a file")
}

// TestNewMemoryDB verifies the in-memory database runs migrations and is
// usable without touching the filesystem.
func TestNewMemoryDB(t *testing.T) {
	db, err := NewMemoryDB()
	require.NoError(t, err, "NewMemoryDB should succeed")
	defer db.Close()

	var count int
	err = db.conn.QueryRow("SELECT COUNT(*) FROM workflows").Scan(&count)
	require.NoError(t, err, "In-memory database should have migrated schema")
	require.Equal(t, 0, count, "Fresh database should be empty")
}
