package repository

import (
	"context"
	"testing"
	"time"

	"github.com/newsmap/hubcrawl/internal/models"
)

func TestFetchRepositoryLatestFetch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteFetchRepository(db, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []*models.FetchRow{
		{URL: "https://example.com/world", Domain: "example.com", HTTPStatus: 404, FetchedAt: base},
		{URL: "https://example.com/world", Domain: "example.com", HTTPStatus: 200, HTTPSuccess: true, FetchedAt: base.Add(time.Hour)},
		{URL: "https://example.com/sports", Domain: "example.com", HTTPStatus: 200, HTTPSuccess: true, FetchedAt: base},
	}
	for _, row := range rows {
		row.RequestStartedAt = row.FetchedAt
		if err := repo.Record(ctx, row, models.FetchTags{Stage: "validation", AttemptID: "a1"}); err != nil {
			t.Fatalf("failed to record fetch: %v", err)
		}
	}

	latest, err := repo.LatestFetch(ctx, "https://example.com/world")
	if err != nil {
		t.Fatalf("failed to get latest fetch: %v", err)
	}
	if latest == nil {
		t.Fatal("expected a latest fetch, got nil")
	}
	if latest.HTTPStatus != 200 {
		t.Errorf("expected the newer 200 row, got status %d", latest.HTTPStatus)
	}
	if !latest.FetchedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("unexpected fetched_at: %v", latest.FetchedAt)
	}

	missing, err := repo.LatestFetch(ctx, "https://example.com/never")
	if err != nil {
		t.Fatalf("unexpected error for unknown URL: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown URL, got %+v", missing)
	}

	count, err := repo.CountByDomain(ctx, "example.com")
	if err != nil {
		t.Fatalf("failed to count fetches: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 fetches, got %d", count)
	}
}

func TestFetchRepositoryMirrorsLegacyTable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteFetchRepository(db, nil)
	ctx := context.Background()

	row := &models.FetchRow{
		URL: "https://example.com/", Domain: "example.com",
		HTTPStatus: 200, HTTPSuccess: true,
		RequestStartedAt: time.Now().UTC(), FetchedAt: time.Now().UTC(),
		TotalMs: 42,
	}
	if err := repo.Record(ctx, row, models.FetchTags{}); err != nil {
		t.Fatalf("failed to record fetch: %v", err)
	}

	var mirrored int
	if err := db.QueryRow("SELECT COUNT(*) FROM fetch_log WHERE id = ?", row.ID).Scan(&mirrored); err != nil {
		t.Fatalf("failed to query mirror: %v", err)
	}
	if mirrored != 1 {
		t.Errorf("expected 1 mirrored row, got %d", mirrored)
	}
}
