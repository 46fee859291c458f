// Package httpapi exposes the crawler over HTTP: operations, sequences,
// jobs and the live event stream.
package httpapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/newsmap/hubcrawl/internal/jobs"
	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/ops"
	"github.com/newsmap/hubcrawl/internal/probe"
	"github.com/newsmap/hubcrawl/internal/repository"
	"github.com/newsmap/hubcrawl/internal/seqconfig"
	"github.com/newsmap/hubcrawl/internal/version"
)

// Handlers holds the API surface's dependencies.
type Handlers struct {
	facade   *ops.Facade
	registry *jobs.Registry
	bus      *jobs.Bus
	events   repository.TaskEventRepository
	detector *probe.Detector
	logger   *slog.Logger
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(facade *ops.Facade, registry *jobs.Registry, bus *jobs.Bus, events repository.TaskEventRepository, detector *probe.Detector, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		facade:   facade,
		registry: registry,
		bus:      bus,
		events:   events,
		detector: detector,
		logger:   logger,
	}
}

// mapError converts facade and registry errors to HTTP status errors.
func mapError(err error) error {
	var cfgErr *seqconfig.ConfigError
	switch {
	case errors.Is(err, ops.ErrUnknownOperation),
		errors.Is(err, ops.ErrUnknownSequence),
		errors.Is(err, jobs.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, jobs.ErrJobConflict),
		errors.Is(err, jobs.ErrNotRunning):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &cfgErr):
		return huma.Error400BadRequest(err.Error())
	default:
		// Remaining sync-path errors are bad input: malformed start URLs,
		// mistyped overrides, invalid cli JSON.
		return huma.Error400BadRequest(err.Error())
	}
}

// HealthCheckOutput is the health endpoint response.
type HealthCheckOutput struct {
	Body struct {
		Status    string `json:"status"`
		Service   string `json:"service"`
		Framework string `json:"framework"`
		Version   string `json:"version"`
	}
}

// HealthCheck reports process liveness.
func (h *Handlers) HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Service = "hubcrawl"
	out.Body.Framework = "huma"
	out.Body.Version = version.Get().Version
	return out, nil
}

// AvailabilityInput narrows the listing to one side of the catalog.
type AvailabilityInput struct {
	Filter string `query:"filter" enum:"all,operations,sequences" default:"all" doc:"Restrict the listing to operations or sequences"`
}

// AvailabilityOutput lists runnable operations and sequences.
type AvailabilityOutput struct {
	Body struct {
		Status       string           `json:"status"`
		Availability ops.Availability `json:"availability"`
		Totals       struct {
			Operations int `json:"operations"`
			Sequences  int `json:"sequences"`
		} `json:"totals"`
	}
}

// GetAvailability lists everything a client can launch.
func (h *Handlers) GetAvailability(ctx context.Context, input *AvailabilityInput) (*AvailabilityOutput, error) {
	avail := h.facade.Availability()
	switch input.Filter {
	case "operations":
		avail.Sequences = nil
	case "sequences":
		avail.Operations = nil
	}
	out := &AvailabilityOutput{}
	out.Body.Status = "ok"
	out.Body.Availability = avail
	out.Body.Totals.Operations = len(avail.Operations)
	out.Body.Totals.Sequences = len(avail.Sequences)
	return out, nil
}

// OperationRequest is the body for operation run/start endpoints.
type OperationRequest struct {
	StartURL  string         `json:"startUrl" doc:"Seed URL or bare host for the target news site"`
	Overrides map[string]any `json:"overrides,omitempty" doc:"Operation option overrides"`
}

// RunOperationInput invokes one operation synchronously.
type RunOperationInput struct {
	Name string `path:"name" doc:"Operation name"`
	Body OperationRequest
}

// RunOperationOutput wraps the operation result in the standard success
// envelope.
type RunOperationOutput struct {
	Body struct {
		Status    string               `json:"status"`
		Mode      string               `json:"mode"`
		Operation string               `json:"operation"`
		Result    *ops.OperationResult `json:"result"`
	}
}

// RunOperation executes an operation and waits for its result.
func (h *Handlers) RunOperation(ctx context.Context, input *RunOperationInput) (*RunOperationOutput, error) {
	result, err := h.facade.RunOperation(ctx, input.Name, input.Body.StartURL, input.Body.Overrides, "", nil)
	if err != nil {
		return nil, mapError(err)
	}
	out := &RunOperationOutput{}
	out.Body.Status = "ok"
	out.Body.Mode = "operation"
	out.Body.Operation = input.Name
	out.Body.Result = result
	return out, nil
}

// StartOperationInput launches one operation as a background job.
type StartOperationInput struct {
	Name string `path:"name" doc:"Operation name"`
	Body OperationRequest
}

// JobOutput carries one job snapshot.
type JobOutput struct {
	Body *jobs.Job
}

// StartJobOutput acknowledges a launched background job.
type StartJobOutput struct {
	Body struct {
		Status string    `json:"status"`
		Mode   string    `json:"mode"`
		JobID  string    `json:"jobId"`
		Job    *jobs.Job `json:"job"`
	}
}

func startedJob(mode string, job *jobs.Job) *StartJobOutput {
	out := &StartJobOutput{}
	out.Body.Status = "ok"
	out.Body.Mode = mode
	out.Body.JobID = job.ID
	out.Body.Job = job
	return out
}

// StartOperation launches an operation as a background job.
func (h *Handlers) StartOperation(ctx context.Context, input *StartOperationInput) (*StartJobOutput, error) {
	// The job must outlive this request; process shutdown cancels it.
	job, err := h.facade.StartOperation(context.WithoutCancel(ctx), input.Name, input.Body.StartURL, input.Body.Overrides)
	if err != nil {
		return nil, mapError(err)
	}
	return startedJob("operation-job", job), nil
}

// SequenceRequest is the body for sequence run/start endpoints.
type SequenceRequest struct {
	StartURL        string                    `json:"startUrl,omitempty" doc:"Default seed URL for steps without their own"`
	Overrides       map[string]any            `json:"overrides,omitempty" doc:"Overrides applied to every step"`
	StepOverrides   map[string]map[string]any `json:"stepOverrides,omitempty" doc:"Per-step overrides keyed by step id, operation or index"`
	ContinueOnError *bool                     `json:"continueOnError,omitempty" doc:"Keep running past failed steps"`
	CLIOverrides    string                    `json:"cliOverrides,omitempty" doc:"Extra JSON for the cli token namespace (config sequences only)"`
	ConfigDir       string                    `json:"configDir,omitempty" doc:"Alternate runner config directory (config sequences only)"`
	Context         map[string]any            `json:"context,omitempty" doc:"Values for the playbook token namespace (config sequences only)"`
}

func (r SequenceRequest) runtime() ops.RuntimeOptions {
	return ops.RuntimeOptions{
		StartURL:         r.StartURL,
		Overrides:        r.Overrides,
		StepOverrides:    r.StepOverrides,
		ContinueOnError:  r.ContinueOnError,
		CLIOverridesJSON: r.CLIOverrides,
		ConfigDir:        r.ConfigDir,
		Context:          r.Context,
	}
}

// RunSequenceInput invokes a named sequence synchronously.
type RunSequenceInput struct {
	Name string `path:"name" doc:"Sequence name"`
	Body SequenceRequest
}

// RunSequenceOutput wraps a sequence result in the standard success
// envelope. Sequence holds a preset name, SequenceConfig a config name.
type RunSequenceOutput struct {
	Body struct {
		Status         string              `json:"status"`
		Mode           string              `json:"mode"`
		Sequence       string              `json:"sequence,omitempty"`
		SequenceConfig string              `json:"sequenceConfig,omitempty"`
		Result         *ops.SequenceResult `json:"result"`
	}
}

// RunSequencePreset executes a built-in sequence and waits for its result.
func (h *Handlers) RunSequencePreset(ctx context.Context, input *RunSequenceInput) (*RunSequenceOutput, error) {
	result, err := h.facade.RunSequencePreset(ctx, input.Name, input.Body.runtime())
	if err != nil {
		return nil, mapError(err)
	}
	out := &RunSequenceOutput{}
	out.Body.Status = "ok"
	out.Body.Mode = "sequence-preset"
	out.Body.Sequence = input.Name
	out.Body.Result = result
	return out, nil
}

// RunSequenceConfig executes a declarative sequence config and waits for
// its result.
func (h *Handlers) RunSequenceConfig(ctx context.Context, input *RunSequenceInput) (*RunSequenceOutput, error) {
	result, err := h.facade.RunSequenceConfig(ctx, input.Name, input.Body.runtime())
	if err != nil {
		return nil, mapError(err)
	}
	out := &RunSequenceOutput{}
	out.Body.Status = "ok"
	out.Body.Mode = "sequence-config"
	out.Body.SequenceConfig = input.Name
	out.Body.Result = result
	return out, nil
}

// StartSequencePreset launches a built-in sequence as a background job.
func (h *Handlers) StartSequencePreset(ctx context.Context, input *RunSequenceInput) (*StartJobOutput, error) {
	job, err := h.facade.StartSequencePreset(context.WithoutCancel(ctx), input.Name, input.Body.runtime())
	if err != nil {
		return nil, mapError(err)
	}
	return startedJob("sequence-job", job), nil
}

// ListJobsOutput carries job snapshots, newest first.
type ListJobsOutput struct {
	Body struct {
		Jobs []*jobs.Job `json:"jobs"`
	}
}

// ListJobs lists all jobs known to this process.
func (h *Handlers) ListJobs(ctx context.Context, input *struct{}) (*ListJobsOutput, error) {
	out := &ListJobsOutput{}
	out.Body.Jobs = h.registry.List()
	return out, nil
}

// JobIDInput addresses one job.
type JobIDInput struct {
	ID string `path:"id" doc:"Job id"`
}

// GetJob returns one job by id.
func (h *Handlers) GetJob(ctx context.Context, input *JobIDInput) (*JobOutput, error) {
	job, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return &JobOutput{Body: job}, nil
}

// JobActionOutput acknowledges a lifecycle action.
type JobActionOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func ackJob(status string) *JobActionOutput {
	out := &JobActionOutput{}
	out.Body.Status = status
	return out
}

// PauseJob latches a running job.
func (h *Handlers) PauseJob(ctx context.Context, input *JobIDInput) (*JobActionOutput, error) {
	if err := h.registry.Pause(input.ID); err != nil {
		return nil, mapError(err)
	}
	return ackJob("paused"), nil
}

// ResumeJob releases a paused job.
func (h *Handlers) ResumeJob(ctx context.Context, input *JobIDInput) (*JobActionOutput, error) {
	if err := h.registry.Resume(input.ID); err != nil {
		return nil, mapError(err)
	}
	return ackJob("resumed"), nil
}

// StopJob requests a cooperative abort.
func (h *Handlers) StopJob(ctx context.Context, input *JobIDInput) (*JobActionOutput, error) {
	if err := h.registry.Stop(input.ID); err != nil {
		return nil, mapError(err)
	}
	return ackJob("stopping"), nil
}

// JobEventsInput pages through one job's event history.
type JobEventsInput struct {
	ID    string `path:"id" doc:"Job id"`
	After string `query:"after" doc:"Return events with ids greater than this cursor"`
}

// JobEventsOutput carries persisted task events in id order.
type JobEventsOutput struct {
	Body struct {
		Events []*models.TaskEvent `json:"events"`
		Cursor string              `json:"cursor,omitempty" doc:"Pass as after to resume"`
	}
}

// GetJobEvents returns a job's persisted events after an optional cursor.
// The registry only knows this process's jobs; the event store also serves
// history from previous runs, so no existence check here.
func (h *Handlers) GetJobEvents(ctx context.Context, input *JobEventsInput) (*JobEventsOutput, error) {
	events, err := h.events.GetAfterID(ctx, input.ID, input.After)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read events", err)
	}
	out := &JobEventsOutput{}
	out.Body.Events = events
	if len(events) > 0 {
		out.Body.Cursor = events[len(events)-1].ID
	}
	return out, nil
}

// ProbeInput targets a capability probe.
type ProbeInput struct {
	URL string `query:"url" required:"true" doc:"Base URL or bare host to probe"`
}

// ProbeOutput carries the detected capabilities.
type ProbeOutput struct {
	Body *probe.Capabilities
}

// ProbeDomain samples a site's robots rules and navigation shape and
// suggests the next operation to run against it.
func (h *Handlers) ProbeDomain(ctx context.Context, input *ProbeInput) (*ProbeOutput, error) {
	caps, err := h.detector.Detect(ctx, input.URL)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &ProbeOutput{Body: caps}, nil
}
