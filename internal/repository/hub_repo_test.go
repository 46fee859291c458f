package repository

import (
	"context"
	"testing"

	"github.com/newsmap/hubcrawl/internal/models"
)

func TestHubRepositoryInsertAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteHubRepository(db)
	ctx := context.Background()

	hub := &models.Hub{
		Domain:            "example.com",
		URL:               "https://example.com/news/france",
		PlaceSlug:         "france",
		PlaceKind:         "country",
		Title:             "France news",
		NavLinksCount:     14,
		ArticleLinksCount: 30,
	}
	if err := repo.Insert(ctx, hub); err != nil {
		t.Fatalf("failed to insert hub: %v", err)
	}

	got, err := repo.GetByURL(ctx, "example.com", "https://example.com/news/france")
	if err != nil {
		t.Fatalf("failed to get hub: %v", err)
	}
	if got == nil {
		t.Fatal("expected a hub, got nil")
	}
	if got.NavLinksCount != 14 {
		t.Errorf("expected 14 nav links, got %d", got.NavLinksCount)
	}

	got.ArticleLinksCount = 45
	got.Title = "France headlines"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("failed to update hub: %v", err)
	}

	updated, err := repo.GetByURL(ctx, "example.com", "https://example.com/news/france")
	if err != nil {
		t.Fatalf("failed to re-get hub: %v", err)
	}
	if updated.ArticleLinksCount != 45 || updated.Title != "France headlines" {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.CreatedAt.After(updated.UpdatedAt) {
		t.Error("updated_at should not precede created_at")
	}

	count, err := repo.CountByDomain(ctx, "example.com")
	if err != nil {
		t.Fatalf("failed to count hubs: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 hub, got %d", count)
	}
}

func TestHubRepositoryGetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteHubRepository(db)

	hub, err := repo.GetByURL(context.Background(), "example.com", "https://example.com/none")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hub != nil {
		t.Errorf("expected nil for missing hub, got %+v", hub)
	}
}
