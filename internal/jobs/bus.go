// Package jobs holds the in-process job registry and the telemetry bus.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/repository"
)

// DefaultBatchThreshold is the telemetry buffer size above which events
// are persisted in batches. Small crawls write row by row.
const DefaultBatchThreshold = 20

// Bus is the single logical sink for task events. Every event is
// persisted and broadcast to live subscribers; ordering within one task
// id is preserved because Emit serializes under the bus lock.
type Bus struct {
	repo      repository.TaskEventRepository
	logger    *slog.Logger
	threshold int

	mu      sync.Mutex
	pending map[string][]*models.TaskEvent
	subs    map[int]chan *models.TaskEvent
	nextSub int
}

// NewBus creates a telemetry bus. threshold <= 0 uses the default.
func NewBus(repo repository.TaskEventRepository, threshold int, logger *slog.Logger) *Bus {
	if threshold <= 0 {
		threshold = DefaultBatchThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		repo:      repo,
		logger:    logger,
		threshold: threshold,
		pending:   make(map[string][]*models.TaskEvent),
		subs:      make(map[int]chan *models.TaskEvent),
	}
}

// Emit persists and broadcasts one event. Telemetry events are buffered
// per task and flushed in batches once the buffer passes the threshold;
// every other category flushes the buffer first so store order matches
// emit order.
func (b *Bus) Emit(e *models.TaskEvent) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = "info"
	}

	b.mu.Lock()
	if e.Category == models.EventTelemetry {
		b.pending[e.TaskID] = append(b.pending[e.TaskID], e)
		if len(b.pending[e.TaskID]) >= b.threshold {
			b.flushLocked(e.TaskID)
		}
	} else {
		b.flushLocked(e.TaskID)
		if err := b.repo.Append(context.Background(), e); err != nil {
			b.logger.Warn("failed to persist task event", "task_id", e.TaskID, "error", err)
		}
	}
	b.broadcastLocked(e)
	b.mu.Unlock()
}

// Flush persists any buffered telemetry for a task. Called when a job
// finishes.
func (b *Bus) Flush(taskID string) {
	b.mu.Lock()
	b.flushLocked(taskID)
	b.mu.Unlock()
}

func (b *Bus) flushLocked(taskID string) {
	batch := b.pending[taskID]
	if len(batch) == 0 {
		return
	}
	delete(b.pending, taskID)
	if err := b.repo.AppendBatch(context.Background(), batch); err != nil {
		b.logger.Warn("failed to persist event batch", "task_id", taskID, "count", len(batch), "error", err)
	}
}

func (b *Bus) broadcastLocked(e *models.TaskEvent) {
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber; drop rather than stall the pipeline.
			b.logger.Debug("dropping event for slow subscriber", "subscriber", id, "event", e.EventType)
		}
	}
}

// Subscribe registers a live event channel. The caller must Unsubscribe
// when done.
func (b *Bus) Subscribe() (int, <-chan *models.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan *models.TaskEvent, 64)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
