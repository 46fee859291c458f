package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/config"
	"github.com/newsmap/hubcrawl/internal/crawl"
	"github.com/newsmap/hubcrawl/internal/fetch"
	"github.com/newsmap/hubcrawl/internal/jobs"
	"github.com/newsmap/hubcrawl/internal/logging"
	"github.com/newsmap/hubcrawl/internal/predict"
	"github.com/newsmap/hubcrawl/internal/repository"
	"github.com/newsmap/hubcrawl/internal/seqconfig"
)

// Facade binds the operation registry to its dependencies. The HTTP layer
// and the sequence runner both go through it.
type Facade struct {
	cfg       *config.Config
	repos     *repository.Repositories
	analyzers *predict.Analyzers
	sink      crawl.EventSink
	registry  *jobs.Registry
	logger    *slog.Logger

	operations map[string]Operation
	presets    map[string]Preset
}

// NewFacade wires the facade. A nil sink discards events; registry may be
// nil when only synchronous runs are needed.
func NewFacade(cfg *config.Config, repos *repository.Repositories, analyzers *predict.Analyzers, sink crawl.EventSink, registry *jobs.Registry, logger *slog.Logger) *Facade {
	if sink == nil {
		sink = crawl.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		cfg:        cfg,
		repos:      repos,
		analyzers:  analyzers,
		sink:       sink,
		registry:   registry,
		logger:     logger,
		operations: operationTable(),
		presets:    presetTable(),
	}
}

// SequenceStepInfo is one step in an availability listing.
type SequenceStepInfo struct {
	Operation string `json:"operation"`
	Label     string `json:"label,omitempty"`
}

// SequenceInfo describes one runnable sequence for availability listings.
type SequenceInfo struct {
	Name            string             `json:"name"`
	Kind            string             `json:"kind"` // preset | config
	Summary         string             `json:"summary,omitempty"`
	ContinueOnError bool               `json:"continue_on_error"`
	StepCount       int                `json:"step_count"`
	Steps           []SequenceStepInfo `json:"steps,omitempty"`
}

// Availability lists everything a client can launch.
type Availability struct {
	Operations []Operation    `json:"operations"`
	Sequences  []SequenceInfo `json:"sequences"`
}

// Availability enumerates registered operations, built-in presets and any
// sequence configs found under the runner config directory.
func (f *Facade) Availability() Availability {
	out := Availability{}

	for _, op := range f.operations {
		out.Operations = append(out.Operations, op)
	}
	sort.Slice(out.Operations, func(i, j int) bool {
		return out.Operations[i].Name < out.Operations[j].Name
	})

	for _, p := range f.presets {
		info := SequenceInfo{Name: p.Name, Kind: "preset", Summary: p.Summary, ContinueOnError: p.ContinueOnError}
		for _, s := range p.Steps {
			info.Steps = append(info.Steps, SequenceStepInfo{Operation: s.Operation, Label: s.Label})
		}
		info.StepCount = len(info.Steps)
		out.Sequences = append(out.Sequences, info)
	}
	out.Sequences = append(out.Sequences, f.configSequences()...)
	sort.Slice(out.Sequences, func(i, j int) bool {
		return out.Sequences[i].Name < out.Sequences[j].Name
	})
	return out
}

// configSequences lists sequence config files by name. A missing or
// unreadable directory just yields nothing.
func (f *Facade) configSequences() []SequenceInfo {
	if f.cfg == nil || f.cfg.RunnerConfigDir == "" {
		return nil
	}
	entries, err := os.ReadDir(f.cfg.RunnerConfigDir)
	if err != nil {
		f.logger.Debug("runner config dir not readable", "dir", f.cfg.RunnerConfigDir, "error", err)
		return nil
	}

	var out []SequenceInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		switch strings.ToLower(ext) {
		case ".yaml", ".yml", ".json":
			info := SequenceInfo{
				Name: strings.TrimSuffix(entry.Name(), ext),
				Kind: "config",
			}
			// Best effort; a file that fails to parse still gets listed.
			if cfg, err := seqconfig.Load(filepath.Join(f.cfg.RunnerConfigDir, entry.Name()), nil); err == nil {
				info.ContinueOnError = cfg.ContinueOnError
				info.StepCount = len(cfg.Steps)
				for _, s := range cfg.Steps {
					info.Steps = append(info.Steps, SequenceStepInfo{Operation: s.Operation, Label: s.Label})
				}
			}
			out = append(out, info)
		}
	}
	return out
}

// RunOperation executes one operation synchronously. An error return means
// bad input (unknown name, invalid override, malformed URL); pipeline
// failures come back inside the result with status "error".
func (f *Facade) RunOperation(ctx context.Context, name, startURL string, overrides map[string]any, taskID string, control *crawl.Control) (*OperationResult, error) {
	op, ok := f.operations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	if control == nil {
		control = crawl.NewControl()
	}
	if taskID == "" {
		taskID = ulid.Make().String()
	}

	logger := f.logger
	if raw, ok := overrides["quiet"]; ok {
		quiet, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("override quiet: expected bool, got %T", raw)
		}
		if quiet {
			logger = logging.Silent()
		}
	}

	started := time.Now()
	stats, err := op.run(ctx, f, opRequest{
		startURL:  startURL,
		overrides: overrides,
		taskID:    taskID,
		control:   control,
		logger:    logger,
	})
	result := &OperationResult{ElapsedMs: time.Since(started).Milliseconds()}

	if err != nil {
		var procErr *crawl.ProcessingError
		switch {
		case errors.As(err, &procErr):
			result.Status = "error"
			result.Error = &OperationError{Message: err.Error()}
			result.Stats = procErr.Summary
		case errors.Is(err, errOperationPanic):
			result.Status = "error"
			result.Error = &OperationError{Message: err.Error()}
		default:
			return nil, err
		}
		logger.Error("operation failed", "operation", name, "start_url", startURL, "error", err)
		return result, nil
	}

	result.Status = "ok"
	result.Stats = stats
	return result, nil
}

// StartOperation launches an operation as a background job.
func (f *Facade) StartOperation(ctx context.Context, name, startURL string, overrides map[string]any) (*jobs.Job, error) {
	if _, ok := f.operations[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return f.registry.Start(ctx, name, startURL, overrides, func(ctx context.Context, j *jobs.Job) (any, error) {
		result, err := f.RunOperation(ctx, name, startURL, overrides, j.ID, j.Control())
		if err != nil {
			return nil, err
		}
		if result.Status == "error" && result.Error != nil {
			return result, errors.New(result.Error.Message)
		}
		return result, nil
	})
}

// StartSequencePreset launches a preset sequence as a background job.
func (f *Facade) StartSequencePreset(ctx context.Context, name string, rt RuntimeOptions) (*jobs.Job, error) {
	preset, ok := f.presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSequence, name)
	}
	return f.registry.Start(ctx, "sequence:"+name, rt.StartURL, rt.Overrides, func(ctx context.Context, j *jobs.Job) (any, error) {
		jobRT := rt
		jobRT.TaskID = j.ID
		jobRT.Control = j.Control()
		return f.RunSequence(ctx, preset.spec(), jobRT)
	})
}

// runProcessor executes one domain-processor invocation with a fresh fetch
// client owned by this run.
func (f *Facade) runProcessor(ctx context.Context, req opRequest, opts crawl.Options) (stats any, err error) {
	defer capturePanic(&err)

	client, err := f.newFetchClient(req.overrides)
	if err != nil {
		return nil, err
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = f.fetchTimeout()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = f.concurrency()
	}
	if opts.PatternsPerPlace <= 0 {
		opts.PatternsPerPlace = f.patternsPerPlace()
	}

	logger := req.logger
	if logger == nil {
		logger = f.logger
	}
	processor := crawl.NewProcessor(f.repos, f.analyzers, client, f.sink, f.agePolicy(), logger)
	return processor.Process(ctx, crawl.Request{
		StartURL: req.startURL,
		TaskID:   req.taskID,
		Options:  opts,
		Control:  req.control,
	})
}

// newFetchClient builds the per-run fetch executor, honoring the
// fetch-layer override keys.
func (f *Facade) newFetchClient(overrides map[string]any) (*fetch.Client, error) {
	rateLimit := f.rateLimit()
	maxDownloads := f.maxDownloads()

	if raw, ok := overrides["rateLimitMs"]; ok {
		n, err := toPositiveInt(raw)
		if err != nil {
			return nil, fmt.Errorf("override rateLimitMs: %w", err)
		}
		rateLimit = time.Duration(n) * time.Millisecond
	}
	if raw, ok := overrides["maxDownloads"]; ok {
		n, err := toPositiveInt(raw)
		if err != nil {
			return nil, fmt.Errorf("override maxDownloads: %w", err)
		}
		maxDownloads = n
	}
	return fetch.NewClient(f.userAgent(), rateLimit, maxDownloads), nil
}

func (f *Facade) agePolicy() crawl.AgePolicy {
	if f.cfg == nil || f.cfg.MaxAge <= 0 {
		return crawl.DefaultAgePolicy()
	}
	return crawl.AgePolicy{
		MaxAge:     f.cfg.MaxAge,
		Refresh404: f.cfg.Refresh404,
		Retry4xx:   f.cfg.Retry4xx,
	}
}

func (f *Facade) userAgent() string {
	if f.cfg != nil && f.cfg.UserAgent != "" {
		return f.cfg.UserAgent
	}
	return fetch.DefaultUserAgent
}

func (f *Facade) rateLimit() time.Duration {
	if f.cfg != nil {
		return f.cfg.RateLimit
	}
	return 0
}

func (f *Facade) maxDownloads() int {
	if f.cfg != nil {
		return f.cfg.MaxDownloads
	}
	return 0
}

func (f *Facade) fetchTimeout() time.Duration {
	if f.cfg != nil && f.cfg.FetchTimeout > 0 {
		return f.cfg.FetchTimeout
	}
	return fetch.DefaultTimeout
}

func (f *Facade) concurrency() int {
	if f.cfg != nil && f.cfg.Concurrency > 0 {
		return f.cfg.Concurrency
	}
	return 0
}

func (f *Facade) patternsPerPlace() int {
	if f.cfg != nil && f.cfg.PatternsPlace > 0 {
		return f.cfg.PatternsPlace
	}
	return 0
}
