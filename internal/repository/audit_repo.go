package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/models"
)

// SQLiteAuditRepository implements AuditRepository using SQLite.
type SQLiteAuditRepository struct {
	db *sql.DB
}

// NewSQLiteAuditRepository creates a new SQLite audit repository.
func NewSQLiteAuditRepository(db *sql.DB) *SQLiteAuditRepository {
	return &SQLiteAuditRepository{db: db}
}

// Append writes one audit entry.
func (r *SQLiteAuditRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hub_audit (
			id, run_id, attempt_id, domain, url, place_kind, place_name,
			decision, validation_metrics_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.RunID, e.AttemptID, e.Domain, e.URL,
		nullString(e.PlaceKind), nullString(e.PlaceName),
		string(e.Decision), nullString(e.ValidationMetricsJSON),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByRun returns audit entries for a run in append order.
func (r *SQLiteAuditRepository) ListByRun(ctx context.Context, runID string) ([]*models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, attempt_id, domain, url, place_kind, place_name,
		       decision, validation_metrics_json, created_at
		FROM hub_audit
		WHERE run_id = ?
		ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var placeKind, placeName, metrics sql.NullString
		var decision, createdAt string

		if err := rows.Scan(
			&e.ID, &e.RunID, &e.AttemptID, &e.Domain, &e.URL,
			&placeKind, &placeName, &decision, &metrics, &createdAt,
		); err != nil {
			return nil, err
		}
		e.PlaceKind = placeKind.String
		e.PlaceName = placeName.String
		e.Decision = models.AuditDecision(decision)
		e.ValidationMetricsJSON = metrics.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SQLiteDeterminationRepository implements DeterminationRepository using SQLite.
type SQLiteDeterminationRepository struct {
	db *sql.DB
}

// NewSQLiteDeterminationRepository creates a new SQLite determination repository.
func NewSQLiteDeterminationRepository(db *sql.DB) *SQLiteDeterminationRepository {
	return &SQLiteDeterminationRepository{db: db}
}

// Append writes one domain determination.
func (r *SQLiteDeterminationRepository) Append(ctx context.Context, d *models.DomainDetermination) error {
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO domain_determinations (id, domain, determination, reason, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.Domain, string(d.Determination), d.Reason,
		nullString(d.Details), d.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append determination: %w", err)
	}
	return nil
}

// Latest returns the most recent determination for a domain, or nil.
func (r *SQLiteDeterminationRepository) Latest(ctx context.Context, domain string) (*models.DomainDetermination, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain, determination, reason, details, created_at
		FROM domain_determinations
		WHERE domain = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, domain)

	var d models.DomainDetermination
	var details sql.NullString
	var determination, createdAt string

	err := row.Scan(&d.ID, &d.Domain, &determination, &d.Reason, &details, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest determination: %w", err)
	}

	d.Determination = models.Determination(determination)
	d.Details = details.String
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &d, nil
}
