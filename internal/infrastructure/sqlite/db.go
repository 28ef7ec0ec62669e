// Package sqlite is the embedded persistence layer: one file-backed
// database holding every table the engine reads or writes. All
// repositories share a single *sql.DB pool; migrations are embedded in
// the binary and applied at open.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/notification"
	"github.com/zjrosen/followup/internal/settings"
	"github.com/zjrosen/followup/internal/workflow"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// filePragmas ride on the DSN so every pooled connection gets them;
// foreign_keys and busy_timeout are per-connection in SQLite.
const filePragmas = "?_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=synchronous(NORMAL)"

// DB owns the SQLite connection pool and hands out repositories.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens the database at path, creating the file and its parent
// directory (0700) when missing, and applies pending migrations. An
// existing non-empty file is copied to <path>.bak first, so a botched
// migration never eats the only copy.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := backupExisting(path); err != nil {
		return nil, err
	}

	log.Debug(log.CatDB, "opening database", "path", path)
	conn, err := sql.Open("sqlite3", "file:"+path+filePragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info(log.CatDB, "database ready", "path", path)
	return db, nil
}

// NewMemoryDB opens an in-memory database with the full schema. The
// pool is capped at one connection so every caller sees the same
// database. Used by tests and by callers that want a throwaway store.
func NewMemoryDB() (*DB, error) {
	conn, err := sql.Open("sqlite3", "file::memory:?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: ":memory:"}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// backupExisting copies a non-empty database file aside before
// migrations touch it.
func backupExisting(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat database: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("database path %s is a directory", path)
	}
	if info.Size() == 0 {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database for backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	backupPath := path + ".bak"
	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close backup file: %w", err)
	}
	log.Debug(log.CatDB, "database backed up", "path", backupPath)
	return nil
}

// migrate applies embedded migrations in order.
func (d *DB) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(d.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Connection exposes the raw pool for health checks and the database
// watcher. Repositories never need it.
func (d *DB) Connection() *sql.DB {
	return d.conn
}

// Path returns the database file path, ":memory:" for NewMemoryDB.
func (d *DB) Path() string {
	return d.path
}

// Workflows returns the workflow repository.
func (d *DB) Workflows() workflow.Repository {
	return newWorkflowRepository(d.conn)
}

// Contacts returns the contact repository.
func (d *DB) Contacts() contact.Repository {
	return newContactRepository(d.conn)
}

// ContactEvents returns the contact-event repository.
func (d *DB) ContactEvents() contact.EventRepository {
	return newContactEventRepository(d.conn)
}

// Templates returns the template repository.
func (d *DB) Templates() message.TemplateRepository {
	return newTemplateRepository(d.conn)
}

// Messages returns the message repository.
func (d *DB) Messages() message.Repository {
	return newMessageRepository(d.conn)
}

// Settings returns the settings repository.
func (d *DB) Settings() settings.Repository {
	return newSettingsRepository(d.conn)
}

// Enrollments returns the enrollment repository.
func (d *DB) Enrollments() enrollment.Repository {
	return newEnrollmentRepository(d.conn)
}

// Executions returns the execution repository.
func (d *DB) Executions() enrollment.ExecutionRepository {
	return newExecutionRepository(d.conn)
}

// ExecutionLogs returns the execution-log repository.
func (d *DB) ExecutionLogs() enrollment.LogRepository {
	return newExecutionLogRepository(d.conn)
}

// Notifications returns the notification repository.
func (d *DB) Notifications() notification.Repository {
	return newNotificationRepository(d.conn)
}
