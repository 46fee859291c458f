package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/crawl"
	"github.com/newsmap/hubcrawl/internal/models"
)

// Job statuses.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStopping  Status = "stopping"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Sentinel errors the HTTP surface maps to status codes.
var (
	ErrNotFound    = errors.New("job not found")
	ErrJobConflict = errors.New("another job is already running")
	ErrNotRunning  = errors.New("job is not running")
)

// Job is one running or finished operation. One job owns at most one
// fetch executor instance; Control is shared with its pipeline.
type Job struct {
	ID            string         `json:"id"`
	OperationName string         `json:"operation_name"`
	StartURL      string         `json:"start_url"`
	Overrides     map[string]any `json:"overrides,omitempty"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	Result        any            `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`

	control *crawl.Control
}

// Control returns the job's abort/pause control.
func (j *Job) Control() *crawl.Control { return j.control }

// RunFunc executes the job's operation. The context carries process
// shutdown; cooperative stop goes through the control.
type RunFunc func(ctx context.Context, job *Job) (any, error)

// Registry tracks jobs for the life of the process. At most one job runs
// at a time unless allowMulti is set.
type Registry struct {
	bus        *Bus
	logger     *slog.Logger
	allowMulti bool

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewRegistry creates a job registry publishing lifecycle events on bus.
func NewRegistry(bus *Bus, allowMulti bool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		bus:        bus,
		logger:     logger,
		allowMulti: allowMulti,
		jobs:       make(map[string]*Job),
	}
}

// Start launches an operation as a background job. Returns ErrJobConflict
// when another job is active and multi-job mode is off.
func (r *Registry) Start(ctx context.Context, operationName, startURL string, overrides map[string]any, run RunFunc) (*Job, error) {
	r.mu.Lock()
	if !r.allowMulti {
		for _, j := range r.jobs {
			if j.Status == StatusRunning || j.Status == StatusPaused || j.Status == StatusStopping {
				r.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", ErrJobConflict, j.ID)
			}
		}
	}

	now := time.Now().UTC()
	job := &Job{
		ID:            ulid.Make().String(),
		OperationName: operationName,
		StartURL:      startURL,
		Overrides:     overrides,
		Status:        StatusRunning,
		CreatedAt:     now,
		StartedAt:     now,
		control:       crawl.NewControl(),
	}
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.emitLifecycle(job, "job-started", nil)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		result, err := run(ctx, job)

		r.mu.Lock()
		finished := time.Now().UTC()
		job.FinishedAt = &finished
		job.Result = result
		if err != nil {
			job.Status = StatusFailed
			job.Error = err.Error()
		} else {
			job.Status = StatusCompleted
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.Error("job failed", "job_id", job.ID, "operation", operationName, "error", err)
			r.emitLifecycle(job, "job-failed", map[string]any{"error": err.Error()})
		} else {
			r.emitLifecycle(job, "job-completed", nil)
		}
		r.bus.Flush(job.ID)
	}()

	return job, nil
}

// Get returns a snapshot of a job by id.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// List returns snapshots of all jobs, newest first.
func (r *Registry) List() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		snapshot := *j
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Pause latches a running job's pipeline.
func (r *Registry) Pause(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusRunning {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, job.Status)
	}
	job.Status = StatusPaused
	job.control.Pause()
	go r.emitLifecycle(job, "job-paused", nil)
	return nil
}

// Resume releases a paused job.
func (r *Registry) Resume(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusPaused {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, job.Status)
	}
	job.Status = StatusRunning
	job.control.Resume()
	go r.emitLifecycle(job, "job-resumed", nil)
	return nil
}

// Stop requests a cooperative abort. The job finishes its in-flight
// fetches and completes with an aborted summary.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusRunning && job.Status != StatusPaused {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, job.Status)
	}
	job.Status = StatusStopping
	job.control.Abort()
	go r.emitLifecycle(job, "job-stopping", nil)
	return nil
}

// Wait blocks until every launched job goroutine has returned. Used by
// graceful shutdown.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) emitLifecycle(job *Job, eventType string, extra map[string]any) {
	data := map[string]any{
		"operation": job.OperationName,
		"start_url": job.StartURL,
	}
	for k, v := range extra {
		data[k] = v
	}
	payload, _ := json.Marshal(data)
	r.bus.Emit(&models.TaskEvent{
		TaskType:  "operation",
		TaskID:    job.ID,
		EventType: eventType,
		Category:  models.EventLifecycle,
		DataJSON:  string(payload),
	})
}
