package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/crawl"
	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/seqconfig"
)

// ErrUnknownSequence is returned for sequence names with no preset or
// config file.
var ErrUnknownSequence = errors.New("unknown sequence")

// Sequence terminal statuses. "aborted" means a step failure (or external
// stop) ended the run early; "mixed" means failures occurred but every
// step was attempted.
const (
	SequenceOK      = "ok"
	SequenceAborted = "aborted"
	SequenceMixed   = "mixed"
)

// SequenceStep is one operation invocation inside a sequence.
type SequenceStep struct {
	ID              string         `json:"id"`
	Operation       string         `json:"operation"`
	Label           string         `json:"label,omitempty"`
	StartURL        string         `json:"start_url,omitempty"`
	Overrides       map[string]any `json:"overrides,omitempty"`
	ContinueOnError bool           `json:"continue_on_error,omitempty"`
}

// SequenceSpec is a fully assembled sequence, from a preset or a config
// file.
type SequenceSpec struct {
	Name            string
	StartURL        string
	SharedOverrides map[string]any
	ContinueOnError bool
	Steps           []SequenceStep
}

// RuntimeOptions carry per-invocation inputs into a sequence run.
// StepOverrides keys match a step id, an operation name or a 0-based
// index. Context becomes the playbook token namespace for config
// sequences; Resolvers add or replace further namespaces. OnStepComplete
// fires after every step with its result.
type RuntimeOptions struct {
	StartURL         string
	Overrides        map[string]any
	StepOverrides    map[string]map[string]any
	ContinueOnError  *bool
	CLIOverridesJSON string
	ConfigDir        string
	Context          map[string]any
	Resolvers        []seqconfig.Resolver
	OnStepComplete   func(StepResult)
	TaskID           string
	Control          *crawl.Control
}

// StepResult is the outcome of one sequence step.
type StepResult struct {
	StepID        string           `json:"step_id"`
	Operation     string           `json:"operation"`
	SequenceIndex int              `json:"sequence_index"`
	StartURL      string           `json:"start_url"`
	Status        string           `json:"status"`
	ElapsedMs     int64            `json:"elapsed_ms"`
	Result        *OperationResult `json:"result,omitempty"`
	Error         *OperationError  `json:"error,omitempty"`
}

// SequenceResult is the terminal outcome of a sequence run.
type SequenceResult struct {
	Name       string              `json:"name"`
	Status     string              `json:"status"`
	Steps      []StepResult        `json:"steps"`
	FirstError *OperationError     `json:"error,omitempty"`
	ElapsedMs  int64               `json:"elapsed_ms"`
	Metadata   *seqconfig.Metadata `json:"metadata,omitempty"`
}

// RunSequence executes a sequence's steps in order. Start URL precedence
// per step: step, then runtime, then the sequence's own. Overrides merge
// shared, then step, then runtime, later entries winning key by key.
func (f *Facade) RunSequence(ctx context.Context, spec SequenceSpec, rt RuntimeOptions) (*SequenceResult, error) {
	if len(spec.Steps) == 0 {
		return nil, fmt.Errorf("sequence %q has no steps", spec.Name)
	}

	control := rt.Control
	if control == nil {
		control = crawl.NewControl()
	}
	taskID := rt.TaskID
	if taskID == "" {
		taskID = ulid.Make().String()
	}

	continueOnError := spec.ContinueOnError
	if rt.ContinueOnError != nil {
		continueOnError = *rt.ContinueOnError
	}

	started := time.Now()
	result := &SequenceResult{Name: spec.Name, Status: SequenceOK}
	failed := false

	f.emitSequence(taskID, models.EventLifecycle, "sequence-started", map[string]any{
		"sequence": spec.Name, "steps": len(spec.Steps),
	})

	for i, step := range spec.Steps {
		if control.Aborted() {
			result.Status = SequenceAborted
			break
		}

		startURL := firstNonEmpty(step.StartURL, rt.StartURL, spec.StartURL)
		overrides := mergeOverrideMaps(
			spec.SharedOverrides,
			step.Overrides,
			rt.Overrides,
			runtimeStepOverrides(rt.StepOverrides, step, i),
		)

		f.emitSequence(taskID, models.EventProgress, "sequence-step-started", map[string]any{
			"step": step.ID, "operation": step.Operation, "sequence_index": i,
			"start_url": startURL, "overrides": overrides,
		})

		sr := StepResult{
			StepID:        step.ID,
			Operation:     step.Operation,
			SequenceIndex: i,
			StartURL:      startURL,
		}
		stepStarted := time.Now()
		opResult, err := f.RunOperation(ctx, step.Operation, startURL, overrides, taskID, control)
		sr.ElapsedMs = time.Since(stepStarted).Milliseconds()

		switch {
		case err != nil:
			sr.Status = "error"
			sr.Error = &OperationError{Message: err.Error()}
		case opResult.Status == "error":
			sr.Status = "error"
			sr.Result = opResult
			sr.Error = opResult.Error
		default:
			sr.Status = "ok"
			sr.Result = opResult
		}
		result.Steps = append(result.Steps, sr)
		if rt.OnStepComplete != nil {
			rt.OnStepComplete(sr)
		}

		if sr.Status == "error" {
			failed = true
			if result.FirstError == nil {
				result.FirstError = sr.Error
			}
			f.emitSequence(taskID, models.EventError, "sequence-step-failed", map[string]any{
				"step": step.ID, "operation": step.Operation, "sequence_index": i,
				"error": sr.Error.Message, "result": sr.Result,
			})
			if !step.ContinueOnError && !continueOnError {
				result.Status = SequenceAborted
				break
			}
			continue
		}

		f.emitSequence(taskID, models.EventProgress, "sequence-step-completed", map[string]any{
			"step": step.ID, "operation": step.Operation, "sequence_index": i,
			"result": sr.Result,
		})
	}

	if failed && result.Status != SequenceAborted {
		result.Status = SequenceMixed
	}
	result.ElapsedMs = time.Since(started).Milliseconds()

	f.emitSequence(taskID, models.EventLifecycle, "sequence-completed", map[string]any{
		"sequence": spec.Name, "status": result.Status, "steps_run": len(result.Steps),
	})
	return result, nil
}

// RunSequencePreset runs one of the built-in sequences.
func (f *Facade) RunSequencePreset(ctx context.Context, name string, rt RuntimeOptions) (*SequenceResult, error) {
	preset, ok := f.presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSequence, name)
	}
	return f.RunSequence(ctx, preset.spec(), rt)
}

// RunSequenceConfig loads a declarative sequence by name from the runner
// config directory, resolving its tokens against the cli namespace, and
// runs it.
func (f *Facade) RunSequenceConfig(ctx context.Context, name string, rt RuntimeOptions) (*SequenceResult, error) {
	dir := "config"
	if f.cfg != nil && f.cfg.RunnerConfigDir != "" {
		dir = f.cfg.RunnerConfigDir
	}
	if rt.ConfigDir != "" {
		dir = rt.ConfigDir
	}

	path, err := seqconfig.Find(dir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSequence, name)
	}
	cli, err := seqconfig.NewCLIResolver(rt.StartURL, rt.Overrides, rt.CLIOverridesJSON)
	if err != nil {
		return nil, err
	}
	resolvers := []seqconfig.Resolver{cli}
	if f.cfg != nil {
		resolvers = append(resolvers, seqconfig.MapResolver{Name: "config", Values: f.cfg.TokenValues()})
	}
	if len(rt.Context) > 0 {
		resolvers = append(resolvers, seqconfig.MapResolver{Name: "playbook", Values: rt.Context})
	}
	resolvers = append(resolvers, rt.Resolvers...)

	cfg, err := seqconfig.Load(path, resolvers)
	if err != nil {
		return nil, err
	}

	result, err := f.RunSequence(ctx, specFromConfig(cfg), rt)
	if err != nil {
		return nil, err
	}
	meta := cfg.Metadata
	result.Metadata = &meta
	return result, nil
}

// specFromConfig converts a loaded sequence config into a runnable spec.
func specFromConfig(cfg *seqconfig.Config) SequenceSpec {
	spec := SequenceSpec{
		Name:            cfg.Name,
		StartURL:        cfg.StartURL,
		SharedOverrides: cfg.SharedOverrides,
		ContinueOnError: cfg.ContinueOnError,
	}
	for _, s := range cfg.Steps {
		spec.Steps = append(spec.Steps, SequenceStep{
			ID:              s.ID,
			Operation:       s.Operation,
			Label:           s.Label,
			StartURL:        s.StartURL,
			Overrides:       s.Overrides,
			ContinueOnError: s.ContinueOnError,
		})
	}
	return spec
}

// runtimeStepOverrides finds the runtime override map addressing a step,
// by id first, then operation name, then position.
func runtimeStepOverrides(stepOverrides map[string]map[string]any, step SequenceStep, index int) map[string]any {
	if stepOverrides == nil {
		return nil
	}
	for _, key := range []string{step.ID, step.Operation, strconv.Itoa(index)} {
		if m, ok := stepOverrides[key]; ok {
			return m
		}
	}
	return nil
}

// mergeOverrideMaps folds override maps left to right; later maps win.
// Returns nil when nothing is set.
func mergeOverrideMaps(maps ...map[string]any) map[string]any {
	var out map[string]any
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (f *Facade) emitSequence(taskID string, category models.EventCategory, eventType string, data map[string]any) {
	payload, _ := json.Marshal(data)
	severity := "info"
	if category == models.EventError {
		severity = "warn"
	}
	f.sink.Emit(&models.TaskEvent{
		TaskType:  "sequence",
		TaskID:    taskID,
		EventType: eventType,
		Category:  category,
		Severity:  severity,
		DataJSON:  string(payload),
	})
}
