// Package ops is the operations facade: the registry of named crawl
// operations, the sequence runner and the presets. Everything a client
// can launch goes through here.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/newsmap/hubcrawl/internal/crawl"
	"github.com/newsmap/hubcrawl/internal/models"
)

// ErrUnknownOperation is returned for operation names not in the
// registry. The HTTP surface maps it to 404.
var ErrUnknownOperation = errors.New("unknown operation")

// OperationError carries a captured failure from inside an operation.
type OperationError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// OperationResult is the terminal outcome of one operation run. Status is
// "ok" whenever the pipeline itself did not crash, even if the
// determination inside the stats is an error.
type OperationResult struct {
	Status    string          `json:"status"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Stats     any             `json:"stats,omitempty"`
	Error     *OperationError `json:"error,omitempty"`
}

// Operation is one registered unit of crawl work.
type Operation struct {
	Name           string         `json:"name"`
	Summary        string         `json:"summary"`
	DefaultOptions map[string]any `json:"default_options"`

	run func(ctx context.Context, f *Facade, req opRequest) (any, error)
}

// opRequest is the resolved invocation passed to an operation body.
type opRequest struct {
	startURL  string
	overrides map[string]any
	taskID    string
	control   *crawl.Control
	logger    *slog.Logger
}

// operationTable builds the static registry. Each hub operation is a thin
// wrapper around one pipeline invocation with fixed defaults; overrides
// merge on top.
func operationTable() map[string]Operation {
	table := map[string]Operation{
		"crawlArticles": {
			Name:    "crawlArticles",
			Summary: "Shallow article crawl recording fetch history for a domain",
			DefaultOptions: map[string]any{
				"maxPages": 25, "maxDepth": 2,
			},
			run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
				return f.crawlArticles(ctx, req)
			},
		},
		"ensureCountryHubs": {
			Name:    "ensureCountryHubs",
			Summary: "Discover and persist country hub pages",
			DefaultOptions: map[string]any{
				"kinds": []string{"country"}, "apply": true,
			},
			run: runPipeline(crawl.Options{
				Kinds: []models.PlaceKind{models.PlaceKindCountry},
				Apply: true,
			}),
		},
		"exploreCountryHubs": {
			Name:    "exploreCountryHubs",
			Summary: "Dry-run country and region hub discovery without writing hubs",
			DefaultOptions: map[string]any{
				"kinds": []string{"country", "region"}, "apply": false,
			},
			run: runPipeline(crawl.Options{
				Kinds: []models.PlaceKind{models.PlaceKindCountry, models.PlaceKindRegion},
			}),
		},
		"discoverPlaceHubs": {
			Name:    "discoverPlaceHubs",
			Summary: "Discover and persist hubs for countries, regions and cities",
			DefaultOptions: map[string]any{
				"kinds": []string{"country", "region", "city"}, "apply": true,
			},
			run: runPipeline(crawl.Options{
				Kinds: []models.PlaceKind{models.PlaceKindCountry, models.PlaceKindRegion, models.PlaceKindCity},
				Apply: true,
			}),
		},
		"discoverTopicHubs": {
			Name:    "discoverTopicHubs",
			Summary: "Discover and persist topic hub pages",
			DefaultOptions: map[string]any{
				"enableTopicDiscovery": true, "apply": true,
			},
			run: runPipeline(crawl.Options{
				Kinds:                []models.PlaceKind{models.PlaceKindCountry},
				EnableTopicDiscovery: true,
				Apply:                true,
			}),
		},
		"exploreCombinationHubs": {
			Name:    "exploreCombinationHubs",
			Summary: "Dry-run place-topic combination hub discovery",
			DefaultOptions: map[string]any{
				"enableCombinationDiscovery": true, "apply": false,
			},
			run: runPipeline(crawl.Options{
				Kinds:                      []models.PlaceKind{models.PlaceKindCountry},
				EnableCombinationDiscovery: true,
			}),
		},
	}
	return table
}

// runPipeline wraps one domain-processor invocation with fixed base
// options.
func runPipeline(base crawl.Options) func(ctx context.Context, f *Facade, req opRequest) (any, error) {
	return func(ctx context.Context, f *Facade, req opRequest) (any, error) {
		opts, err := mergeOptions(base, req.overrides)
		if err != nil {
			return nil, err
		}
		return f.runProcessor(ctx, req, opts)
	}
}

// mergeOptions applies a dynamic override map onto the closed option
// struct. Unknown keys error; this is the boundary where loose config
// becomes typed.
func mergeOptions(base crawl.Options, overrides map[string]any) (crawl.Options, error) {
	opts := base
	for key, raw := range overrides {
		switch key {
		case "kinds":
			kinds, err := toStringSlice(raw)
			if err != nil {
				return opts, fmt.Errorf("override kinds: %w", err)
			}
			opts.Kinds = opts.Kinds[:0]
			for _, k := range kinds {
				opts.Kinds = append(opts.Kinds, models.PlaceKind(k))
			}
		case "placeLimit":
			n, err := toPositiveInt(raw)
			if err != nil {
				return opts, fmt.Errorf("override placeLimit: %w", err)
			}
			opts.PlaceLimit = n
		case "patternsPerPlace":
			n, err := toPositiveInt(raw)
			if err != nil {
				return opts, fmt.Errorf("override patternsPerPlace: %w", err)
			}
			opts.PatternsPerPlace = n
		case "apply":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("override apply: expected bool, got %T", raw)
			}
			opts.Apply = b
		case "enableTopicDiscovery":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("override enableTopicDiscovery: expected bool, got %T", raw)
			}
			opts.EnableTopicDiscovery = b
		case "enableCombinationDiscovery":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("override enableCombinationDiscovery: expected bool, got %T", raw)
			}
			opts.EnableCombinationDiscovery = b
		case "topics":
			slugs, err := toStringSlice(raw)
			if err != nil {
				return opts, fmt.Errorf("override topics: %w", err)
			}
			opts.TopicSlugs = slugs
		case "fetchTimeoutMs":
			n, err := toPositiveInt(raw)
			if err != nil {
				return opts, fmt.Errorf("override fetchTimeoutMs: %w", err)
			}
			opts.FetchTimeout = time.Duration(n) * time.Millisecond
		case "concurrency":
			n, err := toPositiveInt(raw)
			if err != nil {
				return opts, fmt.Errorf("override concurrency: %w", err)
			}
			opts.Concurrency = n
		case "probeTimedOut":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("override probeTimedOut: expected bool, got %T", raw)
			}
			opts.ProbeTimedOut = b
		case "maxPages", "maxDepth", "maxDownloads", "rateLimitMs", "quiet":
			// Facade-level overrides; consumed before the pipeline.
		default:
			return opts, fmt.Errorf("unknown override %q", key)
		}
	}
	return opts, nil
}

func toStringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", raw)
	}
}

// toPositiveInt enforces positive-integer semantics for numeric flags:
// zero, negative and fractional values are rejected.
func toPositiveInt(raw any) (int, error) {
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		n = int(v)
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("expected positive integer, got %d", n)
	}
	return n, nil
}

// errOperationPanic marks a recovered panic so the facade can fold it into
// the result instead of treating it as bad input.
var errOperationPanic = errors.New("operation panicked")

// capturePanic converts a panic inside an operation into an error with the
// stack preserved.
func capturePanic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v\n%s", errOperationPanic, r, debug.Stack())
	}
}
