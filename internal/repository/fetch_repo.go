package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/models"
)

// SQLiteFetchRepository implements FetchRepository using SQLite.
type SQLiteFetchRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteFetchRepository creates a new SQLite fetch repository.
func NewSQLiteFetchRepository(db *sql.DB, logger *slog.Logger) *SQLiteFetchRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteFetchRepository{db: db, logger: logger}
}

// Record writes the row to fetch_rows, then mirrors a subset of columns to
// the legacy fetch_log table. A mirror failure does not fail the record;
// it is logged at WARN and the normalized write stands.
func (r *SQLiteFetchRepository) Record(ctx context.Context, row *models.FetchRow, tags models.FetchTags) error {
	if row.ID == "" {
		row.ID = ulid.Make().String()
	}
	if row.FetchedAt.IsZero() {
		row.FetchedAt = time.Now().UTC()
	}
	if row.RequestMethod == "" {
		row.RequestMethod = "GET"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fetch_rows (
			id, url, domain, http_status, http_success, title,
			request_method, request_started_at, fetched_at,
			bytes_downloaded, content_type, content_length,
			total_ms, download_ms, redirect_count,
			stage, attempt_id, cache_hit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.URL, row.Domain, row.HTTPStatus, row.HTTPSuccess,
		nullString(row.Title), row.RequestMethod,
		row.RequestStartedAt.UTC().Format(time.RFC3339Nano),
		row.FetchedAt.UTC().Format(time.RFC3339Nano),
		row.BytesDownloaded, nullString(row.ContentType),
		sql.NullInt64{Int64: row.ContentLength, Valid: row.ContentLength > 0},
		row.TotalMs, row.DownloadMs, row.RedirectCount,
		nullString(tags.Stage), nullString(tags.AttemptID), tags.CacheHit,
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO fetch_log (id, url, domain, http_status, fetched_at, total_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.ID, row.URL, row.Domain, row.HTTPStatus,
		row.FetchedAt.UTC().Format(time.RFC3339Nano), row.TotalMs,
	); err != nil {
		r.logger.Warn("fetch_log mirror write failed", "url", row.URL, "error", err)
	}

	return nil
}

// LatestFetch returns the newest row for a URL, or nil when the URL has
// never been fetched.
func (r *SQLiteFetchRepository) LatestFetch(ctx context.Context, url string) (*models.FetchRow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, url, domain, http_status, http_success, title,
		       request_method, request_started_at, fetched_at,
		       bytes_downloaded, content_type, content_length,
		       total_ms, download_ms, redirect_count
		FROM fetch_rows
		WHERE url = ?
		ORDER BY fetched_at DESC
		LIMIT 1
	`, url)

	f, err := scanFetchRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest fetch: %w", err)
	}
	return f, nil
}

// CountByDomain returns the number of fetch rows for a domain.
func (r *SQLiteFetchRepository) CountByDomain(ctx context.Context, domain string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fetch_rows WHERE domain = ?", domain,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fetches: %w", err)
	}
	return count, nil
}

func scanFetchRow(row *sql.Row) (*models.FetchRow, error) {
	var f models.FetchRow
	var title, contentType sql.NullString
	var contentLength sql.NullInt64
	var startedAt, fetchedAt string

	err := row.Scan(
		&f.ID, &f.URL, &f.Domain, &f.HTTPStatus, &f.HTTPSuccess, &title,
		&f.RequestMethod, &startedAt, &fetchedAt,
		&f.BytesDownloaded, &contentType, &contentLength,
		&f.TotalMs, &f.DownloadMs, &f.RedirectCount,
	)
	if err != nil {
		return nil, err
	}

	f.Title = title.String
	f.ContentType = contentType.String
	f.ContentLength = contentLength.Int64
	f.RequestStartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	f.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
	return &f, nil
}
