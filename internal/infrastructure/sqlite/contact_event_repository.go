package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/followup/internal/contact"
)

const eventColumns = `id, contact_id, type, payload, created_at, processed_at`

// contactEventRepository implements contact.EventRepository using
// SQLite. Events are a durable queue: appended on mutation, consumed
// by the trigger sweep, stamped processed rather than deleted.
type contactEventRepository struct {
	db *sql.DB
}

func newContactEventRepository(db *sql.DB) *contactEventRepository {
	return &contactEventRepository{db: db}
}

// Ensure contactEventRepository implements contact.EventRepository.
var _ contact.EventRepository = (*contactEventRepository)(nil)

func scanEvent(scanner interface{ Scan(...any) error }) (*eventModel, error) {
	var m eventModel
	err := scanner.Scan(&m.ID, &m.ContactID, &m.Type, &m.Payload, &m.CreatedAt, &m.ProcessedAt)
	return &m, err
}

// Append writes an unprocessed event.
func (r *contactEventRepository) Append(ctx context.Context, e *contact.Event) error {
	m, err := toEventModel(e)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO contact_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ContactID, m.Type, m.Payload, m.CreatedAt, m.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append contact event: %w", err)
	}
	return nil
}

// ListUnprocessed returns up to limit pending events, oldest first.
func (r *contactEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]*contact.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM contact_events
		 WHERE processed_at IS NULL ORDER BY created_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contact.Event
	for rows.Next() {
		m, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return out, nil
}

// MarkProcessed stamps processed_at on the given events.
func (r *contactEventRepository) MarkProcessed(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE contact_events SET processed_at = ? WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark events processed: %w", err)
	}
	return nil
}
