package ops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newsmap/hubcrawl/internal/config"
	"github.com/newsmap/hubcrawl/internal/crawl"
	"github.com/newsmap/hubcrawl/internal/jobs"
	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/predict"
	"github.com/newsmap/hubcrawl/internal/repository"
)

type fakeGazetteer struct{ places []models.Place }

func (g fakeGazetteer) Places(kind models.PlaceKind) []models.Place {
	var out []models.Place
	for _, p := range g.places {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type fakeTopics struct{ topics []models.Topic }

func (t fakeTopics) Topics() []models.Topic { return t.topics }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFacade(t *testing.T, repos *repository.Repositories, places ...models.Place) *Facade {
	t.Helper()
	analyzers := &predict.Analyzers{
		Library:   predict.NewLibrary(),
		Gazetteer: fakeGazetteer{places: places},
		Topics:    fakeTopics{},
	}
	cfg := &config.Config{RunnerConfigDir: t.TempDir()}
	return NewFacade(cfg, repos, analyzers, nil, nil, quietLogger())
}

func country(name string) models.Place {
	return models.Place{Kind: models.PlaceKindCountry, Name: name, Importance: 0.9}
}

// validHubBody returns HTML that passes place validation for the token.
func validHubBody(token string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + token + " news</title></head><body><nav>")
	for _, p := range []string{"/", "/world", "/sports", "/business"} {
		b.WriteString(fmt.Sprintf(`<a href="%s">x</a>`, p))
	}
	b.WriteString("</nav>")
	for i := 0; i < 6; i++ {
		b.WriteString(fmt.Sprintf(`<a href="/2026/03/%s-story-%d">%s</a>`, token, i, token))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func seedFetchHistory(t *testing.T, repos *repository.Repositories, domain string) {
	t.Helper()
	err := repos.Fetch.Record(context.Background(), &models.FetchRow{
		URL: "http://" + domain + "/old", Domain: domain, HTTPStatus: 200,
		HTTPSuccess: true,
		FetchedAt:   time.Now().UTC().Add(-90 * 24 * time.Hour),
	}, models.FetchTags{})
	if err != nil {
		t.Fatalf("failed to seed fetch history: %v", err)
	}
}

func TestRunOperationUnknownName(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())

	_, err := f.RunOperation(context.Background(), "optimizeEverything", "https://a.test", nil, "", nil)
	if !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestRunOperationInvalidOverride(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories(), country("France"))

	_, err := f.RunOperation(context.Background(), "ensureCountryHubs", "https://a.test",
		map[string]any{"apply": "yes"}, "", nil)
	if err == nil || !strings.Contains(err.Error(), "apply") {
		t.Errorf("expected override type error, got %v", err)
	}

	_, err = f.RunOperation(context.Background(), "ensureCountryHubs", "https://a.test",
		map[string]any{"warpSpeed": true}, "", nil)
	if err == nil || !strings.Contains(err.Error(), "warpSpeed") {
		t.Errorf("expected unknown override error, got %v", err)
	}
}

func TestEnsureCountryHubsInsertsHub(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, validHubBody("france"))
	}))
	defer server.Close()

	repos := repository.NewMemoryRepositories()
	seedFetchHistory(t, repos, "127.0.0.1")
	f := testFacade(t, repos, country("France"))

	result, err := f.RunOperation(context.Background(), "ensureCountryHubs", server.URL, nil, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "ok" {
		t.Fatalf("expected ok, got %q (%+v)", result.Status, result.Error)
	}

	summary, ok := result.Stats.(*crawl.Summary)
	if !ok {
		t.Fatalf("expected a crawl summary, got %T", result.Stats)
	}
	if summary.InsertedHubs == 0 {
		t.Errorf("expected inserted hubs, got %+v", summary)
	}
	if n, _ := repos.Hub.CountByDomain(context.Background(), "127.0.0.1"); n == 0 {
		t.Error("expected hub rows persisted")
	}
}

func TestRunOperationFoldsPipelineFailure(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())
	f.operations["breaksBadly"] = Operation{
		Name: "breaksBadly",
		run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
			return nil, &crawl.ProcessingError{Domain: "a.test", Err: errors.New("store exploded")}
		},
	}

	result, err := f.RunOperation(context.Background(), "breaksBadly", "https://a.test", nil, "", nil)
	if err != nil {
		t.Fatalf("pipeline failure must not surface as an input error: %v", err)
	}
	if result.Status != "error" || result.Error == nil {
		t.Fatalf("expected error result, got %+v", result)
	}
	if !strings.Contains(result.Error.Message, "store exploded") {
		t.Errorf("expected cause in message, got %q", result.Error.Message)
	}
}

func TestRunOperationRecoversPanic(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())
	f.operations["panics"] = Operation{
		Name: "panics",
		run: func(ctx context.Context, f *Facade, req opRequest) (result any, err error) {
			defer capturePanic(&err)
			panic("boom")
		},
	}

	result, err := f.RunOperation(context.Background(), "panics", "https://a.test", nil, "", nil)
	if err != nil {
		t.Fatalf("panic must be folded into the result: %v", err)
	}
	if result.Status != "error" || !strings.Contains(result.Error.Message, "boom") {
		t.Errorf("expected captured panic, got %+v", result)
	}
}

// registerSequenceFakes installs two passing steps and one failing step
// for runner tests.
func registerSequenceFakes(f *Facade) {
	pass := func(ctx context.Context, f *Facade, req opRequest) (any, error) {
		return map[string]any{"ok": true}, nil
	}
	f.operations["stepA"] = Operation{Name: "stepA", run: pass}
	f.operations["stepC"] = Operation{Name: "stepC", run: pass}
	f.operations["stepB"] = Operation{Name: "stepB", run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
		return nil, &crawl.ProcessingError{Domain: "a.test", Err: errors.New("step B blew up")}
	}}
}

func TestRunSequenceAbortsOnStepFailure(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())
	registerSequenceFakes(f)

	spec := SequenceSpec{
		Name: "three-step",
		Steps: []SequenceStep{
			{ID: "a", Operation: "stepA"},
			{ID: "b", Operation: "stepB"},
			{ID: "c", Operation: "stepC"},
		},
	}

	result, err := f.RunSequence(context.Background(), spec, RuntimeOptions{StartURL: "https://a.test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != SequenceAborted {
		t.Errorf("expected aborted, got %q", result.Status)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected the failure to stop before step c, got %d steps", len(result.Steps))
	}
	if result.Steps[0].Status != "ok" || result.Steps[1].Status != "error" {
		t.Errorf("unexpected step statuses: %+v", result.Steps)
	}
	if result.FirstError == nil || !strings.Contains(result.FirstError.Message, "step B blew up") {
		t.Errorf("expected the step error surfaced, got %+v", result.FirstError)
	}
}

func TestRunSequenceContinueOnErrorIsMixed(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())
	registerSequenceFakes(f)

	spec := SequenceSpec{
		Name: "three-step",
		Steps: []SequenceStep{
			{ID: "a", Operation: "stepA"},
			{ID: "b", Operation: "stepB"},
			{ID: "c", Operation: "stepC"},
		},
	}

	keepGoing := true
	result, err := f.RunSequence(context.Background(), spec, RuntimeOptions{
		StartURL:        "https://a.test",
		ContinueOnError: &keepGoing,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != SequenceMixed {
		t.Errorf("expected mixed, got %q", result.Status)
	}
	if len(result.Steps) != 3 {
		t.Errorf("expected all steps attempted, got %d", len(result.Steps))
	}
	if result.Steps[2].Status != "ok" {
		t.Errorf("expected step c to run after the failure, got %+v", result.Steps[2])
	}
}

func TestRunSequenceOverridePrecedence(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())

	var seen map[string]any
	f.operations["inspect"] = Operation{Name: "inspect", run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
		seen = req.overrides
		return nil, nil
	}}

	spec := SequenceSpec{
		Name:            "one-step",
		SharedOverrides: map[string]any{"placeLimit": 1, "apply": false},
		Steps: []SequenceStep{
			{ID: "only", Operation: "inspect", Overrides: map[string]any{"placeLimit": 5}},
		},
	}
	_, err := f.RunSequence(context.Background(), spec, RuntimeOptions{
		StartURL:      "https://a.test",
		StepOverrides: map[string]map[string]any{"only": {"apply": true}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen["placeLimit"] != 5 {
		t.Errorf("step override must beat shared, got %v", seen["placeLimit"])
	}
	if seen["apply"] != true {
		t.Errorf("runtime step override must beat shared, got %v", seen["apply"])
	}
}

func TestRunSequencePreset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, validHubBody("france"))
	}))
	defer server.Close()

	repos := repository.NewMemoryRepositories()
	seedFetchHistory(t, repos, "127.0.0.1")
	f := testFacade(t, repos, country("France"))

	result, err := f.RunSequencePreset(context.Background(), "country-hub-sweep", RuntimeOptions{StartURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != SequenceOK {
		t.Errorf("expected ok, got %q (%+v)", result.Status, result.FirstError)
	}
	if len(result.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(result.Steps))
	}

	if _, err := f.RunSequencePreset(context.Background(), "no-such-sweep", RuntimeOptions{}); !errors.Is(err, ErrUnknownSequence) {
		t.Errorf("expected ErrUnknownSequence, got %v", err)
	}
}

func TestRunSequenceConfig(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())

	var gotStartURL string
	f.operations["stepA"] = Operation{Name: "stepA", run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
		gotStartURL = req.startURL
		return nil, nil
	}}

	doc := "name: nightly\nstartUrl: \"@cli.startUrl\"\nsteps:\n  - operation: stepA\n"
	path := filepath.Join(f.cfg.RunnerConfigDir, "nightly.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	result, err := f.RunSequenceConfig(context.Background(), "nightly", RuntimeOptions{StartURL: "https://cli.test/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != SequenceOK {
		t.Errorf("expected ok, got %q", result.Status)
	}
	if gotStartURL != "https://cli.test/" {
		t.Errorf("cli token not threaded to the step, got %q", gotStartURL)
	}
	if result.Metadata == nil || len(result.Metadata.ResolvedTokens) != 1 {
		t.Errorf("expected resolution metadata, got %+v", result.Metadata)
	}

	if _, err := f.RunSequenceConfig(context.Background(), "absent", RuntimeOptions{}); err == nil {
		t.Error("expected an error for an unknown config name")
	}
}

func TestCrawlArticlesRecordsFetchHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>front</title></head><body>
			<a href="/news/uk">UK</a>
			<a href="/2026/01/front-story-1">story</a>
		</body></html>`)
	})
	mux.HandleFunc("/news/uk", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>uk</title></head><body>
			<a href="/2026/01/uk-story-2">story</a>
			<a href="/2026/01/uk-story-3">story</a>
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	repos := repository.NewMemoryRepositories()
	f := testFacade(t, repos)

	result, err := f.RunOperation(context.Background(), "crawlArticles", server.URL,
		map[string]any{"maxPages": 10}, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "ok" {
		t.Fatalf("expected ok, got %+v", result.Error)
	}

	summary, ok := result.Stats.(*ArticleCrawl)
	if !ok {
		t.Fatalf("expected an article crawl summary, got %T", result.Stats)
	}
	if summary.PagesVisited < 2 {
		t.Errorf("expected the front page and section visited, got %d", summary.PagesVisited)
	}
	if summary.ArticlesFound < 3 {
		t.Errorf("expected 3 article links discovered, got %d", summary.ArticlesFound)
	}

	if n, _ := repos.Fetch.CountByDomain(context.Background(), "127.0.0.1"); n < 2 {
		t.Errorf("expected fetch rows for visited pages, got %d", n)
	}
}

func TestAvailabilityListsEverything(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())
	path := filepath.Join(f.cfg.RunnerConfigDir, "nightly.yaml")
	if err := os.WriteFile(path, []byte("steps:\n  - operation: crawlArticles\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	avail := f.Availability()
	if len(avail.Operations) != 6 {
		t.Errorf("expected 6 operations, got %d", len(avail.Operations))
	}
	for i := 1; i < len(avail.Operations); i++ {
		if avail.Operations[i].Name < avail.Operations[i-1].Name {
			t.Fatal("operations not sorted by name")
		}
	}

	byName := map[string]SequenceInfo{}
	for _, s := range avail.Sequences {
		byName[s.Name] = s
	}
	if byName["country-hub-sweep"].Kind != "preset" {
		t.Errorf("expected country-hub-sweep preset, got %+v", byName)
	}
	if byName["full-discovery"].Kind != "preset" {
		t.Errorf("expected full-discovery preset, got %+v", byName)
	}
	if byName["nightly"].Kind != "config" {
		t.Errorf("expected nightly config listed, got %+v", byName)
	}
}

func TestStartOperationRunsJob(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	bus := jobs.NewBus(repository.NewMemoryTaskEventRepository(), 0, quietLogger())
	registry := jobs.NewRegistry(bus, false, quietLogger())

	analyzers := &predict.Analyzers{
		Library:   predict.NewLibrary(),
		Gazetteer: fakeGazetteer{places: []models.Place{country("France")}},
		Topics:    fakeTopics{},
	}
	f := NewFacade(&config.Config{}, repos, analyzers, bus, registry, quietLogger())

	// No fetch history: the run settles as insufficient-data but the job
	// itself completes.
	job, err := f.StartOperation(context.Background(), "ensureCountryHubs", "https://example.invalid", nil)
	if err != nil {
		t.Fatalf("failed to start job: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := registry.Get(job.ID)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if got.Status == jobs.StatusCompleted {
			result, ok := got.Result.(*OperationResult)
			if !ok || result.Status != "ok" {
				t.Fatalf("expected ok result, got %+v", got.Result)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestMergeOptionsTyping(t *testing.T) {
	base := crawl.Options{}

	opts, err := mergeOptions(base, map[string]any{
		"kinds":          []any{"country", "city"},
		"placeLimit":     float64(4),
		"fetchTimeoutMs": 2500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts.Kinds) != 2 || opts.Kinds[1] != models.PlaceKindCity {
		t.Errorf("kinds not decoded: %+v", opts.Kinds)
	}
	if opts.PlaceLimit != 4 {
		t.Errorf("whole float must decode as int, got %d", opts.PlaceLimit)
	}
	if opts.FetchTimeout != 2500*time.Millisecond {
		t.Errorf("unexpected timeout %v", opts.FetchTimeout)
	}

	if _, err := mergeOptions(base, map[string]any{"placeLimit": 2.5}); err == nil {
		t.Error("fractional numbers must be rejected")
	}
	if _, err := mergeOptions(base, map[string]any{"placeLimit": 0}); err == nil {
		t.Error("zero must be rejected")
	}
}

func TestRunSequenceStartURLPrecedence(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())

	var seen []string
	f.operations["inspect"] = Operation{Name: "inspect", run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
		seen = append(seen, req.startURL)
		return nil, nil
	}}

	spec := SequenceSpec{
		Name:     "seeded",
		StartURL: "https://config.example",
		Steps: []SequenceStep{
			{ID: "plain", Operation: "inspect"},
			{ID: "pinned", Operation: "inspect", StartURL: "https://step.example"},
		},
	}
	_, err := f.RunSequence(context.Background(), spec, RuntimeOptions{StartURL: "https://runtime.example"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen[0] != "https://runtime.example" {
		t.Errorf("runtime start URL must beat the sequence's own, got %q", seen[0])
	}
	if seen[1] != "https://step.example" {
		t.Errorf("step start URL must beat everything, got %q", seen[1])
	}

	// Without a runtime value the sequence's own URL applies.
	seen = nil
	_, err = f.RunSequence(context.Background(), spec, RuntimeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen[0] != "https://config.example" {
		t.Errorf("expected the sequence start URL as fallback, got %q", seen[0])
	}
}

func TestRunSequenceConfigExternalNamespaces(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())
	f.cfg.UserAgent = "cfg-agent"

	var gotStartURL string
	var gotOverrides map[string]any
	f.operations["inspect"] = Operation{Name: "inspect", run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
		gotStartURL = req.startURL
		gotOverrides = req.overrides
		return nil, nil
	}}

	doc := "name: external\n" +
		"startUrl: \"@playbook.primarySeed\"\n" +
		"sharedOverrides:\n" +
		"  note: \"@config.userAgent\"\n" +
		"steps:\n" +
		"  - operation: inspect\n"
	path := filepath.Join(f.cfg.RunnerConfigDir, "external.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	result, err := f.RunSequenceConfig(context.Background(), "external", RuntimeOptions{
		Context: map[string]any{"primarySeed": "https://playbook.test/"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != SequenceOK {
		t.Fatalf("expected ok, got %q (%+v)", result.Status, result.FirstError)
	}
	if gotStartURL != "https://playbook.test/" {
		t.Errorf("playbook token not resolved, got %q", gotStartURL)
	}
	if gotOverrides["note"] != "cfg-agent" {
		t.Errorf("config token not resolved, got %v", gotOverrides["note"])
	}
	if result.Metadata == nil || len(result.Metadata.ResolvedTokens) != 2 {
		t.Errorf("expected both tokens in metadata, got %+v", result.Metadata)
	}
}

func TestRunSequenceStepCallback(t *testing.T) {
	f := testFacade(t, repository.NewMemoryRepositories())
	registerSequenceFakes(f)

	spec := SequenceSpec{
		Name:            "three-step",
		ContinueOnError: true,
		Steps: []SequenceStep{
			{ID: "a", Operation: "stepA"},
			{ID: "b", Operation: "stepB"},
			{ID: "c", Operation: "stepC"},
		},
	}

	var calls []StepResult
	_, err := f.RunSequence(context.Background(), spec, RuntimeOptions{
		StartURL:       "https://a.test",
		OnStepComplete: func(sr StepResult) { calls = append(calls, sr) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(calls) != 3 {
		t.Fatalf("expected a callback per step, got %d", len(calls))
	}
	if calls[0].StepID != "a" || calls[1].StepID != "b" || calls[2].StepID != "c" {
		t.Errorf("callbacks out of order: %+v", calls)
	}
	if calls[1].Status != "error" || calls[1].Error == nil {
		t.Errorf("expected the failing step's result in its callback, got %+v", calls[1])
	}
	if calls[0].Result == nil {
		t.Errorf("expected the step result attached, got %+v", calls[0])
	}
}

type captureSink struct {
	events []*models.TaskEvent
}

func (s *captureSink) Emit(e *models.TaskEvent) { s.events = append(s.events, e) }

func TestSequenceEventsCarryStepPayloads(t *testing.T) {
	sink := &captureSink{}
	analyzers := &predict.Analyzers{Library: predict.NewLibrary(), Gazetteer: fakeGazetteer{}, Topics: fakeTopics{}}
	f := NewFacade(&config.Config{RunnerConfigDir: t.TempDir()}, repository.NewMemoryRepositories(), analyzers, sink, nil, quietLogger())
	registerSequenceFakes(f)

	spec := SequenceSpec{
		Name:            "two-step",
		SharedOverrides: map[string]any{"placeLimit": 3},
		ContinueOnError: true,
		Steps: []SequenceStep{
			{ID: "a", Operation: "stepA"},
			{ID: "b", Operation: "stepB"},
		},
	}
	if _, err := f.RunSequence(context.Background(), spec, RuntimeOptions{StartURL: "https://a.test"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byType := map[string]string{}
	for _, e := range sink.events {
		byType[e.EventType] = e.DataJSON
	}

	started := byType["sequence-step-started"]
	if !strings.Contains(started, `"start_url":"https://a.test"`) {
		t.Errorf("step start event missing start_url: %s", started)
	}
	if !strings.Contains(started, `"placeLimit":3`) {
		t.Errorf("step start event missing overrides: %s", started)
	}
	if completed := byType["sequence-step-completed"]; !strings.Contains(completed, `"result"`) {
		t.Errorf("step completion event missing result: %s", completed)
	}
	if failed := byType["sequence-step-failed"]; !strings.Contains(failed, `"error"`) || !strings.Contains(failed, `"result"`) {
		t.Errorf("step failure event missing payload: %s", failed)
	}
}

func TestRunOperationQuietSuppressesLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	analyzers := &predict.Analyzers{Library: predict.NewLibrary(), Gazetteer: fakeGazetteer{}, Topics: fakeTopics{}}
	f := NewFacade(&config.Config{RunnerConfigDir: t.TempDir()}, repository.NewMemoryRepositories(), analyzers, nil, nil, logger)
	f.operations["breaksBadly"] = Operation{
		Name: "breaksBadly",
		run: func(ctx context.Context, f *Facade, req opRequest) (any, error) {
			return nil, &crawl.ProcessingError{Domain: "a.test", Err: errors.New("store exploded")}
		},
	}

	result, err := f.RunOperation(context.Background(), "breaksBadly", "https://a.test",
		map[string]any{"quiet": true}, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "error" {
		t.Fatalf("expected error result, got %+v", result)
	}
	if buf.Len() != 0 {
		t.Errorf("quiet run must not log, got %q", buf.String())
	}

	if _, err := f.RunOperation(context.Background(), "breaksBadly", "https://a.test", nil, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "operation failed") {
		t.Errorf("expected the failure logged without quiet, got %q", buf.String())
	}

	if _, err := f.RunOperation(context.Background(), "breaksBadly", "https://a.test",
		map[string]any{"quiet": "yes"}, "", nil); err == nil {
		t.Error("expected a type error for a non-bool quiet value")
	}
}
