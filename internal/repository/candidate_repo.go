package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/models"
)

// SQLiteCandidateRepository implements CandidateRepository using SQLite.
type SQLiteCandidateRepository struct {
	db *sql.DB
}

// NewSQLiteCandidateRepository creates a new SQLite candidate repository.
func NewSQLiteCandidateRepository(db *sql.DB) *SQLiteCandidateRepository {
	return &SQLiteCandidateRepository{db: db}
}

// Save upserts a candidate on (domain, canonical_url). A conflicting row
// keeps its id, created_at and status; the prediction payload and
// last_seen_at are refreshed.
func (r *SQLiteCandidateRepository) Save(ctx context.Context, c *models.Candidate) error {
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastSeenAt.IsZero() {
		c.LastSeenAt = now
	}
	if c.Status == "" {
		c.Status = models.CandidateStatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO candidates (
			id, domain, canonical_url, place_kind, place_name, place_code,
			topic_slug, analyzer, strategy, score, confidence, pattern,
			signals_json, status, attempt_id, last_seen_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, canonical_url) DO UPDATE SET
			place_kind = excluded.place_kind,
			place_name = excluded.place_name,
			place_code = excluded.place_code,
			topic_slug = excluded.topic_slug,
			analyzer = excluded.analyzer,
			strategy = excluded.strategy,
			score = excluded.score,
			confidence = excluded.confidence,
			pattern = excluded.pattern,
			signals_json = excluded.signals_json,
			attempt_id = excluded.attempt_id,
			last_seen_at = excluded.last_seen_at
	`,
		c.ID, c.Domain, c.CanonicalURL,
		nullString(c.PlaceKind), nullString(c.PlaceName), nullString(c.PlaceCode),
		nullString(c.TopicSlug), c.Analyzer, c.Strategy,
		nullFloat(c.Score), nullFloat(c.Confidence), nullString(c.Pattern),
		nullString(c.SignalsJSON), string(c.Status), c.AttemptID,
		c.LastSeenAt.Format(time.RFC3339), c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save candidate: %w", err)
	}
	return nil
}

// MarkStatus records a fetch outcome against a candidate.
func (r *SQLiteCandidateRepository) MarkStatus(ctx context.Context, u CandidateStatusUpdate) error {
	if u.LastSeenAt.IsZero() {
		u.LastSeenAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE candidates
		SET status = ?, http_status = ?, error_message = ?, last_seen_at = ?
		WHERE domain = ? AND canonical_url = ?
	`,
		string(u.Status), nullInt(u.HTTPStatus), nullString(u.ErrorMessage),
		u.LastSeenAt.Format(time.RFC3339), u.Domain, u.CanonicalURL,
	)
	if err != nil {
		return fmt.Errorf("failed to mark candidate status: %w", err)
	}
	return requireRow(result, u.CanonicalURL)
}

// UpdateValidation records a validation outcome against a candidate.
func (r *SQLiteCandidateRepository) UpdateValidation(ctx context.Context, u CandidateValidationUpdate) error {
	if u.LastSeenAt.IsZero() {
		u.LastSeenAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE candidates
		SET status = ?, validation_status = ?, confidence = ?,
		    signals_json = ?, last_seen_at = ?
		WHERE domain = ? AND canonical_url = ?
	`,
		string(u.Status), nullString(u.ValidationStatus), nullFloat(u.Confidence),
		nullString(u.SignalsJSON), u.LastSeenAt.Format(time.RFC3339),
		u.Domain, u.CanonicalURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update candidate validation: %w", err)
	}
	return requireRow(result, u.CanonicalURL)
}

// GetByURL returns a candidate by (domain, canonical_url), or nil.
func (r *SQLiteCandidateRepository) GetByURL(ctx context.Context, domain, canonicalURL string) (*models.Candidate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain, canonical_url, place_kind, place_name, place_code,
		       topic_slug, analyzer, strategy, score, confidence, pattern,
		       signals_json, status, http_status, validation_status,
		       error_message, attempt_id, last_seen_at, created_at
		FROM candidates
		WHERE domain = ? AND canonical_url = ?
	`, domain, canonicalURL)

	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// CountByDomain returns the number of candidates for a domain.
func (r *SQLiteCandidateRepository) CountByDomain(ctx context.Context, domain string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM candidates WHERE domain = ?", domain,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count candidates: %w", err)
	}
	return count, nil
}

func requireRow(result sql.Result, url string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("candidate not found: %s", url)
	}
	return nil
}

func scanCandidate(row *sql.Row) (*models.Candidate, error) {
	var c models.Candidate
	var placeKind, placeName, placeCode, topicSlug sql.NullString
	var pattern, signals, validationStatus, errorMessage sql.NullString
	var score, confidence sql.NullFloat64
	var httpStatus sql.NullInt64
	var status, lastSeenAt, createdAt string

	err := row.Scan(
		&c.ID, &c.Domain, &c.CanonicalURL, &placeKind, &placeName, &placeCode,
		&topicSlug, &c.Analyzer, &c.Strategy, &score, &confidence, &pattern,
		&signals, &status, &httpStatus, &validationStatus,
		&errorMessage, &c.AttemptID, &lastSeenAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.PlaceKind = placeKind.String
	c.PlaceName = placeName.String
	c.PlaceCode = placeCode.String
	c.TopicSlug = topicSlug.String
	c.Score = score.Float64
	c.Confidence = confidence.Float64
	c.Pattern = pattern.String
	c.SignalsJSON = signals.String
	c.Status = models.CandidateStatus(status)
	c.HTTPStatus = int(httpStatus.Int64)
	c.ValidationStatus = validationStatus.String
	c.ErrorMessage = errorMessage.String
	c.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeenAt)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}
