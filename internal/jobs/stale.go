package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/repository"
)

// terminalEvents are the lifecycle event types that close a task's
// history.
var terminalEvents = map[string]bool{
	"job-completed":   true,
	"job-failed":      true,
	"job-interrupted": true,
}

// MarkStaleTasksInterrupted appends a terminal event for every task whose
// history a previous process left open. Jobs are in-memory, so a restart
// orphans their event streams; this closes them.
func MarkStaleTasksInterrupted(ctx context.Context, repo repository.TaskEventRepository, logger *slog.Logger) (int, error) {
	last, err := repo.LastByTask(ctx, "operation")
	if err != nil {
		return 0, fmt.Errorf("failed to inspect task histories: %w", err)
	}

	closed := 0
	for _, e := range last {
		if e.Category == models.EventLifecycle && terminalEvents[e.EventType] {
			continue
		}
		err := repo.Append(ctx, &models.TaskEvent{
			TaskType:  "operation",
			TaskID:    e.TaskID,
			EventType: "job-interrupted",
			Category:  models.EventLifecycle,
			Severity:  "warn",
			DataJSON:  `{"reason":"process restarted while task was active"}`,
		})
		if err != nil {
			return closed, fmt.Errorf("failed to close task %s: %w", e.TaskID, err)
		}
		logger.Warn("closed stale task history", "task_id", e.TaskID, "last_event", e.EventType)
		closed++
	}
	return closed, nil
}
