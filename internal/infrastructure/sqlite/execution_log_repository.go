package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zjrosen/followup/internal/enrollment"
)

const logColumns = `id, execution_id, enrollment_id, node_id, node_type, action, status, input, output, error, duration_ms, created_at`

// executionLogRepository implements enrollment.LogRepository using
// SQLite. The table is append-only; reads order by rowid because
// second-resolution timestamps cannot order rows written in the same
// batch.
type executionLogRepository struct {
	db *sql.DB
}

func newExecutionLogRepository(db *sql.DB) *executionLogRepository {
	return &executionLogRepository{db: db}
}

// Ensure executionLogRepository implements enrollment.LogRepository.
var _ enrollment.LogRepository = (*executionLogRepository)(nil)

func scanLog(scanner interface{ Scan(...any) error }) (*logModel, error) {
	var m logModel
	err := scanner.Scan(
		&m.ID, &m.ExecutionID, &m.EnrollmentID, &m.NodeID, &m.NodeType,
		&m.Action, &m.Status, &m.Input, &m.Output, &m.Error, &m.DurationMS, &m.CreatedAt,
	)
	return &m, err
}

// Append writes one log row.
func (r *executionLogRepository) Append(ctx context.Context, l *enrollment.ExecutionLog) error {
	m, err := toLogModel(l)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflow_execution_logs (`+logColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ExecutionID, m.EnrollmentID, m.NodeID, m.NodeType,
		m.Action, m.Status, m.Input, m.Output, m.Error, m.DurationMS, m.CreatedAt,
	)
	if err != nil {
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM workflow_execution_logs
		 WHERE `+column+` = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*enrollment.ExecutionLog
	for rows.Next() {
		m, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log row: %w", err)
		}
		l, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution log rows: %w", err)
	}
	return out, nil
}
