package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/enrollment"
)

// executionLogRepository implements enrollment.LogRepository using
// Postgres. The table is append-only; reads order by the seq sequence
// because timestamps cannot order rows written in the same batch.
type executionLogRepository struct {
	db *bun.DB
}

func newExecutionLogRepository(db *bun.DB) *executionLogRepository {
	return &executionLogRepository{db: db}
}

// Ensure executionLogRepository implements enrollment.LogRepository.
var _ enrollment.LogRepository = (*executionLogRepository)(nil)

// Append writes one log row.
func (r *executionLogRepository) Append(ctx context.Context, l *enrollment.ExecutionLog) error {
	m, err := toLogModel(l)
	if err != nil {
		return err
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	return nil
}

// ListByExecution returns an execution's logs in append order.
func (r *executionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*enrollment.ExecutionLog, error) {
	return r.list(ctx, "execution_id", executionID)
}

// ListByEnrollment returns an enrollment's logs in append order.
func (r *executionLogRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*enrollment.ExecutionLog, error) {
	return r.list(ctx, "enrollment_id", enrollmentID)
}

func (r *executionLogRepository) list(ctx context.Context, column, id string) ([]*enrollment.ExecutionLog, error) {
	var ms []*logModel
	err := r.db.NewSelect().Model(&ms).
		Where("? = ?", bun.Ident(column), id).
		OrderExpr("seq").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}

	var out []*enrollment.ExecutionLog
	for _, m := range ms {
		l, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
