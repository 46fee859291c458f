package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/newsmap/hubcrawl/internal/models"
)

func TestTaskEventRepositoryCursor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteTaskEventRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := repo.Append(ctx, &models.TaskEvent{
			TaskType:  "operation",
			TaskID:    "job-1",
			EventType: fmt.Sprintf("progress-%d", i),
			Category:  models.EventProgress,
		})
		if err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	all, err := repo.GetAfterID(ctx, "job-1", "")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("events not ordered by id: %s after %s", all[i].ID, all[i-1].ID)
		}
	}

	tail, err := repo.GetAfterID(ctx, "job-1", all[2].ID)
	if err != nil {
		t.Fatalf("failed to get events after cursor: %v", err)
	}
	if len(tail) != 2 {
		t.Errorf("expected 2 events after cursor, got %d", len(tail))
	}
	if len(tail) > 0 && tail[0].EventType != "progress-3" {
		t.Errorf("expected progress-3 first, got %s", tail[0].EventType)
	}
}

func TestTaskEventRepositoryBatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteTaskEventRepository(db)
	ctx := context.Background()

	batch := make([]*models.TaskEvent, 25)
	for i := range batch {
		batch[i] = &models.TaskEvent{
			TaskType:  "operation",
			TaskID:    "job-2",
			EventType: "page-fetched",
			Category:  models.EventTelemetry,
		}
	}
	if err := repo.AppendBatch(ctx, batch); err != nil {
		t.Fatalf("failed to append batch: %v", err)
	}

	events, err := repo.GetAfterID(ctx, "job-2", "")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 25 {
		t.Errorf("expected 25 events, got %d", len(events))
	}
	if events[0].Severity != "info" {
		t.Errorf("expected default severity info, got %q", events[0].Severity)
	}
}

func TestTaskEventRepositoryLastByTask(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteTaskEventRepository(db)
	ctx := context.Background()

	seed := []struct {
		taskID, eventType string
	}{
		{"job-a", "started"},
		{"job-a", "completed"},
		{"job-b", "started"},
	}
	for _, s := range seed {
		err := repo.Append(ctx, &models.TaskEvent{
			TaskType:  "operation",
			TaskID:    s.taskID,
			EventType: s.eventType,
			Category:  models.EventLifecycle,
		})
		if err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	last, err := repo.LastByTask(ctx, "operation")
	if err != nil {
		t.Fatalf("failed to get last events: %v", err)
	}
	if len(last) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(last))
	}

	byTask := make(map[string]string)
	for _, e := range last {
		byTask[e.TaskID] = e.EventType
	}
	if byTask["job-a"] != "completed" {
		t.Errorf("expected job-a last event completed, got %q", byTask["job-a"])
	}
	if byTask["job-b"] != "started" {
		t.Errorf("expected job-b last event started, got %q", byTask["job-b"])
	}
}

func TestDeterminationRepositoryLatest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeterminationRepository(db)
	ctx := context.Background()

	verdicts := []models.Determination{
		models.DeterminationInsufficientData,
		models.DeterminationProcessed,
	}
	for _, v := range verdicts {
		err := repo.Append(ctx, &models.DomainDetermination{
			Domain:        "example.com",
			Determination: v,
			Reason:        string(v),
		})
		if err != nil {
			t.Fatalf("failed to append determination: %v", err)
		}
	}

	latest, err := repo.Latest(ctx, "example.com")
	if err != nil {
		t.Fatalf("failed to get latest determination: %v", err)
	}
	if latest == nil {
		t.Fatal("expected a determination, got nil")
	}
	if latest.Determination != models.DeterminationProcessed {
		t.Errorf("expected processed, got %q", latest.Determination)
	}

	none, err := repo.Latest(ctx, "other.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unknown domain, got %+v", none)
	}
}
