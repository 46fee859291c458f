package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/models"
)

// SQLiteHubRepository implements HubRepository using SQLite.
type SQLiteHubRepository struct {
	db *sql.DB
}

// NewSQLiteHubRepository creates a new SQLite hub repository.
func NewSQLiteHubRepository(db *sql.DB) *SQLiteHubRepository {
	return &SQLiteHubRepository{db: db}
}

// GetByURL returns the hub for (domain, url), or nil when absent.
func (r *SQLiteHubRepository) GetByURL(ctx context.Context, domain, url string) (*models.Hub, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain, url, place_slug, place_kind, topic_slug,
		       topic_label, title, nav_links_count, article_links_count,
		       evidence_json, created_at, updated_at
		FROM hubs
		WHERE domain = ? AND url = ?
	`, domain, url)

	h, err := scanHub(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hub: %w", err)
	}
	return h, nil
}

// Insert creates a new hub row.
func (r *SQLiteHubRepository) Insert(ctx context.Context, hub *models.Hub) error {
	if hub.ID == "" {
		hub.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if hub.CreatedAt.IsZero() {
		hub.CreatedAt = now
	}
	hub.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hubs (
			id, domain, url, place_slug, place_kind, topic_slug,
			topic_label, title, nav_links_count, article_links_count,
			evidence_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		hub.ID, hub.Domain, hub.URL,
		nullString(hub.PlaceSlug), nullString(hub.PlaceKind),
		nullString(hub.TopicSlug), nullString(hub.TopicLabel),
		nullString(hub.Title), hub.NavLinksCount, hub.ArticleLinksCount,
		nullString(hub.EvidenceJSON),
		hub.CreatedAt.Format(time.RFC3339), hub.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert hub: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing hub. Callers diff
// against the stored snapshot first and skip the write when nothing
// changed, keeping updated_at honest.
func (r *SQLiteHubRepository) Update(ctx context.Context, hub *models.Hub) error {
	hub.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE hubs
		SET place_slug = ?, place_kind = ?, topic_slug = ?, topic_label = ?,
		    title = ?, nav_links_count = ?, article_links_count = ?,
		    evidence_json = ?, updated_at = ?
		WHERE domain = ? AND url = ?
	`,
		nullString(hub.PlaceSlug), nullString(hub.PlaceKind),
		nullString(hub.TopicSlug), nullString(hub.TopicLabel),
		nullString(hub.Title), hub.NavLinksCount, hub.ArticleLinksCount,
		nullString(hub.EvidenceJSON), hub.UpdatedAt.Format(time.RFC3339),
		hub.Domain, hub.URL,
	)
	if err != nil {
		return fmt.Errorf("failed to update hub: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("hub not found: %s", hub.URL)
	}
	return nil
}

// ListByDomain returns all hubs for a domain ordered by URL.
func (r *SQLiteHubRepository) ListByDomain(ctx context.Context, domain string) ([]*models.Hub, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, domain, url, place_slug, place_kind, topic_slug,
		       topic_label, title, nav_links_count, article_links_count,
		       evidence_json, created_at, updated_at
		FROM hubs
		WHERE domain = ?
		ORDER BY url
	`, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list hubs: %w", err)
	}
	defer rows.Close()

	var hubs []*models.Hub
	for rows.Next() {
		h, err := scanHubRows(rows)
		if err != nil {
			return nil, err
		}
		hubs = append(hubs, h)
	}
	return hubs, rows.Err()
}

// CountByDomain returns the number of hubs for a domain.
func (r *SQLiteHubRepository) CountByDomain(ctx context.Context, domain string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM hubs WHERE domain = ?", domain,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count hubs: %w", err)
	}
	return count, nil
}

func scanHub(row *sql.Row) (*models.Hub, error) {
	var h models.Hub
	var placeSlug, placeKind, topicSlug, topicLabel, title, evidence sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&h.ID, &h.Domain, &h.URL, &placeSlug, &placeKind, &topicSlug,
		&topicLabel, &title, &h.NavLinksCount, &h.ArticleLinksCount,
		&evidence, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	assignHubNullables(&h, placeSlug, placeKind, topicSlug, topicLabel, title, evidence, createdAt, updatedAt)
	return &h, nil
}

func scanHubRows(rows *sql.Rows) (*models.Hub, error) {
	var h models.Hub
	var placeSlug, placeKind, topicSlug, topicLabel, title, evidence sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(
		&h.ID, &h.Domain, &h.URL, &placeSlug, &placeKind, &topicSlug,
		&topicLabel, &title, &h.NavLinksCount, &h.ArticleLinksCount,
		&evidence, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	assignHubNullables(&h, placeSlug, placeKind, topicSlug, topicLabel, title, evidence, createdAt, updatedAt)
	return &h, nil
}

func assignHubNullables(h *models.Hub, placeSlug, placeKind, topicSlug, topicLabel, title, evidence sql.NullString, createdAt, updatedAt string) {
	h.PlaceSlug = placeSlug.String
	h.PlaceKind = placeKind.String
	h.TopicSlug = topicSlug.String
	h.TopicLabel = topicLabel.String
	h.Title = title.String
	h.EvidenceJSON = evidence.String
	h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	h.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
}
