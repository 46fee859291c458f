package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/repository"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForStatus(t *testing.T, r *Registry, id string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := r.Get(id)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := r.Get(id)
	t.Fatalf("job %s never reached %s, stuck at %s", id, want, job.Status)
	return nil
}

func TestRegistryRunsJobToCompletion(t *testing.T) {
	repo := repository.NewMemoryTaskEventRepository()
	bus := NewBus(repo, 0, quietLogger())
	r := NewRegistry(bus, false, quietLogger())

	job, err := r.Start(context.Background(), "ensureCountryHubs", "https://a.test", nil,
		func(ctx context.Context, j *Job) (any, error) {
			return map[string]any{"fetched": 3}, nil
		})
	if err != nil {
		t.Fatalf("failed to start job: %v", err)
	}

	done := waitForStatus(t, r, job.ID, StatusCompleted)
	if done.Result == nil {
		t.Error("expected a result on the completed job")
	}
	if done.FinishedAt == nil {
		t.Error("expected finishedAt to be set")
	}

	events, err := repo.GetAfterID(context.Background(), job.ID, "")
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("expected lifecycle events, got %d", len(events))
	}
	if events[0].EventType != "job-started" {
		t.Errorf("expected job-started first, got %s", events[0].EventType)
	}
	if events[len(events)-1].EventType != "job-completed" {
		t.Errorf("expected job-completed last, got %s", events[len(events)-1].EventType)
	}
}

func TestRegistryConflict(t *testing.T) {
	bus := NewBus(repository.NewMemoryTaskEventRepository(), 0, quietLogger())
	r := NewRegistry(bus, false, quietLogger())

	release := make(chan struct{})
	first, err := r.Start(context.Background(), "ensureCountryHubs", "https://a.test", nil,
		func(ctx context.Context, j *Job) (any, error) {
			<-release
			return nil, nil
		})
	if err != nil {
		t.Fatalf("failed to start first job: %v", err)
	}

	_, err = r.Start(context.Background(), "discoverTopicHubs", "https://a.test", nil,
		func(ctx context.Context, j *Job) (any, error) { return nil, nil })
	if !errors.Is(err, ErrJobConflict) {
		t.Errorf("expected ErrJobConflict, got %v", err)
	}

	close(release)
	waitForStatus(t, r, first.ID, StatusCompleted)

	// A finished job no longer blocks new ones.
	if _, err := r.Start(context.Background(), "discoverTopicHubs", "https://a.test", nil,
		func(ctx context.Context, j *Job) (any, error) { return nil, nil }); err != nil {
		t.Errorf("expected start after completion, got %v", err)
	}
}

func TestRegistryAllowMultiJobs(t *testing.T) {
	bus := NewBus(repository.NewMemoryTaskEventRepository(), 0, quietLogger())
	r := NewRegistry(bus, true, quietLogger())

	release := make(chan struct{})
	run := func(ctx context.Context, j *Job) (any, error) {
		<-release
		return nil, nil
	}

	a, err := r.Start(context.Background(), "opA", "https://a.test", nil, run)
	if err != nil {
		t.Fatalf("failed to start first job: %v", err)
	}
	b, err := r.Start(context.Background(), "opB", "https://b.test", nil, run)
	if err != nil {
		t.Fatalf("expected concurrent jobs in multi mode, got %v", err)
	}

	close(release)
	waitForStatus(t, r, a.ID, StatusCompleted)
	waitForStatus(t, r, b.ID, StatusCompleted)

	if len(r.List()) != 2 {
		t.Errorf("expected 2 jobs listed, got %d", len(r.List()))
	}
}

func TestRegistryPauseResumeStop(t *testing.T) {
	bus := NewBus(repository.NewMemoryTaskEventRepository(), 0, quietLogger())
	r := NewRegistry(bus, false, quietLogger())

	started := make(chan struct{})
	job, err := r.Start(context.Background(), "ensureCountryHubs", "https://a.test", nil,
		func(ctx context.Context, j *Job) (any, error) {
			close(started)
			for !j.Control().Aborted() {
				if err := j.Control().WaitIfPaused(ctx); err != nil {
					return nil, err
				}
				time.Sleep(time.Millisecond)
			}
			return "aborted", nil
		})
	if err != nil {
		t.Fatalf("failed to start job: %v", err)
	}
	<-started

	if err := r.Pause(job.ID); err != nil {
		t.Fatalf("failed to pause: %v", err)
	}
	paused, _ := r.Get(job.ID)
	if paused.Status != StatusPaused {
		t.Errorf("expected paused, got %s", paused.Status)
	}
	if err := r.Pause(job.ID); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning on double pause, got %v", err)
	}

	if err := r.Resume(job.ID); err != nil {
		t.Fatalf("failed to resume: %v", err)
	}
	if err := r.Stop(job.ID); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
	waitForStatus(t, r, job.ID, StatusCompleted)

	if err := r.Stop("01J00000000000000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBusBatchesTelemetry(t *testing.T) {
	repo := repository.NewMemoryTaskEventRepository()
	bus := NewBus(repo, 5, quietLogger())

	// Four telemetry events stay buffered below the threshold.
	for i := 0; i < 4; i++ {
		bus.Emit(&models.TaskEvent{
			TaskType: "operation", TaskID: "t1",
			EventType: fmt.Sprintf("page-fetched-%d", i),
			Category:  models.EventTelemetry,
		})
	}
	if events, _ := repo.GetAfterID(context.Background(), "t1", ""); len(events) != 0 {
		t.Fatalf("expected buffered telemetry, found %d persisted", len(events))
	}

	// The fifth reaches the threshold and flushes the batch.
	bus.Emit(&models.TaskEvent{
		TaskType: "operation", TaskID: "t1",
		EventType: "page-fetched-4", Category: models.EventTelemetry,
	})
	events, _ := repo.GetAfterID(context.Background(), "t1", "")
	if len(events) != 5 {
		t.Fatalf("expected 5 persisted events after flush, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID <= events[i-1].ID {
			t.Fatal("batch flush broke per-task ordering")
		}
	}
}

func TestBusLifecycleFlushesBuffer(t *testing.T) {
	repo := repository.NewMemoryTaskEventRepository()
	bus := NewBus(repo, 10, quietLogger())

	bus.Emit(&models.TaskEvent{TaskType: "operation", TaskID: "t2", EventType: "page-fetched", Category: models.EventTelemetry})
	bus.Emit(&models.TaskEvent{TaskType: "operation", TaskID: "t2", EventType: "job-completed", Category: models.EventLifecycle})

	events, _ := repo.GetAfterID(context.Background(), "t2", "")
	if len(events) != 2 {
		t.Fatalf("expected 2 persisted events, got %d", len(events))
	}
	if events[0].EventType != "page-fetched" || events[1].EventType != "job-completed" {
		t.Errorf("store order does not match emit order: %s, %s", events[0].EventType, events[1].EventType)
	}
}

func TestBusBroadcast(t *testing.T) {
	bus := NewBus(repository.NewMemoryTaskEventRepository(), 0, quietLogger())

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	bus.Emit(&models.TaskEvent{TaskType: "operation", TaskID: "t3", EventType: "job-started", Category: models.EventLifecycle})

	select {
	case e := <-ch:
		if e.EventType != "job-started" {
			t.Errorf("unexpected event %s", e.EventType)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestMarkStaleTasksInterrupted(t *testing.T) {
	repo := repository.NewMemoryTaskEventRepository()
	ctx := context.Background()

	seed := []struct {
		taskID, eventType string
		category          models.EventCategory
	}{
		{"done", "job-started", models.EventLifecycle},
		{"done", "job-completed", models.EventLifecycle},
		{"stale", "job-started", models.EventLifecycle},
		{"stale", "page-fetched", models.EventTelemetry},
	}
	for _, s := range seed {
		repo.Append(ctx, &models.TaskEvent{
			TaskType: "operation", TaskID: s.taskID,
			EventType: s.eventType, Category: s.category,
		})
	}

	closed, err := MarkStaleTasksInterrupted(ctx, repo, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected 1 closed task, got %d", closed)
	}

	events, _ := repo.GetAfterID(ctx, "stale", "")
	last := events[len(events)-1]
	if last.EventType != "job-interrupted" {
		t.Errorf("expected job-interrupted appended, got %s", last.EventType)
	}

	// Idempotent on a second pass.
	if closed, _ := MarkStaleTasksInterrupted(ctx, repo, quietLogger()); closed != 0 {
		t.Errorf("expected nothing to close on second pass, got %d", closed)
	}
}
