package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/contact"
)

// contactEventRepository implements contact.EventRepository using
// Postgres. Events are a durable queue: appended on mutation, consumed
// by the trigger sweep, stamped processed rather than deleted.
type contactEventRepository struct {
	db *bun.DB
}

func newContactEventRepository(db *bun.DB) *contactEventRepository {
	return &contactEventRepository{db: db}
}

// Ensure contactEventRepository implements contact.EventRepository.
var _ contact.EventRepository = (*contactEventRepository)(nil)

// Append writes an unprocessed event.
func (r *contactEventRepository) Append(ctx context.Context, e *contact.Event) error {
	m, err := toEventModel(e)
	if err != nil {
		return err
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append contact event: %w", err)
	}
	return nil
}

// ListUnprocessed returns up to limit pending events, oldest first.
func (r *contactEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]*contact.Event, error) {
	var ms []*eventModel
	q := r.db.NewSelect().Model(&ms).
		Where("processed_at IS NULL").
		OrderExpr("created_at, seq")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}

	var out []*contact.Event
	for _, m := range ms {
		e, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// MarkProcessed stamps processed_at on the given events.
func (r *contactEventRepository) MarkProcessed(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.NewUpdate().Model((*eventModel)(nil)).
		Set("processed_at = ?", at).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark events processed: %w", err)
	}
	return nil
}
