package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/models"
)

// SQLiteTaskEventRepository implements TaskEventRepository using SQLite.
type SQLiteTaskEventRepository struct {
	db *sql.DB
}

// NewSQLiteTaskEventRepository creates a new SQLite task event repository.
func NewSQLiteTaskEventRepository(db *sql.DB) *SQLiteTaskEventRepository {
	return &SQLiteTaskEventRepository{db: db}
}

// Append writes one task event.
func (r *SQLiteTaskEventRepository) Append(ctx context.Context, e *models.TaskEvent) error {
	prepareEvent(e)
	_, err := r.db.ExecContext(ctx, insertTaskEventSQL, taskEventArgs(e)...)
	if err != nil {
		return fmt.Errorf("failed to append task event: %w", err)
	}
	return nil
}

// AppendBatch writes a batch of events in one transaction. Used by the
// telemetry bus when crawls exceed the batching threshold.
func (r *SQLiteTaskEventRepository) AppendBatch(ctx context.Context, events []*models.TaskEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTaskEventSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		prepareEvent(e)
		if _, err := stmt.ExecContext(ctx, taskEventArgs(e)...); err != nil {
			return fmt.Errorf("failed to append task event batch: %w", err)
		}
	}

	return tx.Commit()
}

// GetAfterID returns events for a task with id greater than afterID,
// oldest first. ULID ids sort lexicographically by creation time, so the
// id column doubles as the stream cursor.
func (r *SQLiteTaskEventRepository) GetAfterID(ctx context.Context, taskID, afterID string) ([]*models.TaskEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_type, task_id, event_type, category, severity, data_json, created_at
		FROM task_events
		WHERE task_id = ? AND id > ?
		ORDER BY id
	`, taskID, afterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task events: %w", err)
	}
	defer rows.Close()

	return collectTaskEvents(rows)
}

// LastByTask returns the newest event per task_id for a task type. Used at
// startup to find tasks a previous process left without a terminal event.
func (r *SQLiteTaskEventRepository) LastByTask(ctx context.Context, taskType string) ([]*models.TaskEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_type, task_id, event_type, category, severity, data_json, created_at
		FROM task_events
		WHERE task_type = ? AND id IN (
			SELECT MAX(id) FROM task_events WHERE task_type = ? GROUP BY task_id
		)
		ORDER BY id
	`, taskType, taskType)
	if err != nil {
		return nil, fmt.Errorf("failed to get last task events: %w", err)
	}
	defer rows.Close()

	return collectTaskEvents(rows)
}

const insertTaskEventSQL = `
	INSERT INTO task_events (id, task_type, task_id, event_type, category, severity, data_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func prepareEvent(e *models.TaskEvent) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = "info"
	}
}

func taskEventArgs(e *models.TaskEvent) []any {
	return []any{
		e.ID, e.TaskType, e.TaskID, e.EventType, string(e.Category),
		e.Severity, nullString(e.DataJSON), e.CreatedAt.Format(time.RFC3339Nano),
	}
}

func collectTaskEvents(rows *sql.Rows) ([]*models.TaskEvent, error) {
	var events []*models.TaskEvent
	for rows.Next() {
		var e models.TaskEvent
		var data sql.NullString
		var category, createdAt string

		if err := rows.Scan(
			&e.ID, &e.TaskType, &e.TaskID, &e.EventType, &category,
			&e.Severity, &data, &createdAt,
		); err != nil {
			return nil, err
		}
		e.Category = models.EventCategory(category)
		e.DataJSON = data.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}
