package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/fetch"
	"github.com/newsmap/hubcrawl/internal/hub"
	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/predict"
	"github.com/newsmap/hubcrawl/internal/repository"
)

// Fetcher is the fetch surface the processor needs. *fetch.Client
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts fetch.Options) (*fetch.Result, error)
	BudgetExhausted() bool
}

// EventSink receives task events emitted by the pipeline.
type EventSink interface {
	Emit(e *models.TaskEvent)
}

// NopSink discards events. Used when no telemetry bus is wired.
type NopSink struct{}

func (NopSink) Emit(*models.TaskEvent) {}

// Options configure one domain run. Zero values take the documented
// defaults.
type Options struct {
	Kinds                      []models.PlaceKind `json:"kinds,omitempty"`
	PlaceLimit                 int                `json:"place_limit,omitempty"`
	PatternsPerPlace           int                `json:"patterns_per_place,omitempty"`
	Apply                      bool               `json:"apply"`
	EnableTopicDiscovery       bool               `json:"enable_topic_discovery"`
	EnableCombinationDiscovery bool               `json:"enable_combination_discovery"`
	TopicSlugs                 []string           `json:"topic_slugs,omitempty"`
	FetchTimeout               time.Duration      `json:"fetch_timeout,omitempty"`
	Concurrency                int                `json:"concurrency,omitempty"`
	ProbeTimedOut              bool               `json:"probe_timed_out,omitempty"`
}

func (o Options) withDefaults() Options {
	if len(o.Kinds) == 0 {
		o.Kinds = []models.PlaceKind{models.PlaceKindCountry}
	}
	if o.PlaceLimit <= 0 {
		o.PlaceLimit = 10
	}
	if o.PatternsPerPlace <= 0 {
		o.PatternsPerPlace = 3
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = fetch.DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	return o
}

// Request is one domain-processing invocation.
type Request struct {
	StartURL string
	TaskID   string
	Options  Options
	Control  *Control
}

// ProcessingError wraps an unexpected pipeline failure; the summary still
// reflects partial progress.
type ProcessingError struct {
	Domain  string
	Summary *Summary
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s failed: %v", e.Domain, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Processor drives the hub-discovery pipeline over injected stores,
// analyzers and a fetcher.
type Processor struct {
	repos     *repository.Repositories
	analyzers *predict.Analyzers
	fetcher   Fetcher
	sink      EventSink
	policy    AgePolicy
	logger    *slog.Logger
}

// NewProcessor wires a processor. A nil sink discards events; a nil
// logger uses the default.
func NewProcessor(repos *repository.Repositories, analyzers *predict.Analyzers, fetcher Fetcher, sink EventSink, policy AgePolicy, logger *slog.Logger) *Processor {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repos:     repos,
		analyzers: analyzers,
		fetcher:   fetcher,
		sink:      sink,
		policy:    policy,
		logger:    logger,
	}
}

// unit is one hub target: a place, a topic, or a place-topic pair.
type unit struct {
	place *models.Place
	topic *models.Topic
}

func (u unit) describe() string {
	switch {
	case u.place != nil && u.topic != nil:
		return u.place.Name + "/" + u.topic.Slug
	case u.topic != nil:
		return u.topic.Slug
	default:
		return u.place.Name
	}
}

// run holds the per-invocation state shared by workers.
type run struct {
	p       *Processor
	domain  Domain
	opts    Options
	taskID  string
	control *Control
	summary *Summary

	rateLimited atomic.Bool
	budgetHit   atomic.Bool
}

// Process executes the full pipeline for one domain. An error return
// means invalid input or a ProcessingError; every crawl-level failure is
// folded into the summary instead.
func (p *Processor) Process(ctx context.Context, req Request) (*Summary, error) {
	domain, err := NormalizeDomain(req.StartURL)
	if err != nil {
		return nil, err
	}

	opts := req.Options.withDefaults()
	control := req.Control
	if control == nil {
		control = NewControl()
	}

	runID := ulid.Make().String()
	attemptID := ulid.Make().String()
	summary := newSummary(domain.Host, runID, attemptID)

	r := &run{
		p:       p,
		domain:  domain,
		opts:    opts,
		taskID:  req.TaskID,
		control: control,
		summary: summary,
	}

	r.emit(models.EventLifecycle, "domain-processing-started", map[string]any{
		"domain": domain.Host, "run_id": runID,
	})

	readiness, err := p.assessReadiness(ctx, domain, opts)
	if err != nil {
		return summary, &ProcessingError{Domain: domain.Host, Summary: summary, Err: err}
	}
	summary.Readiness = &readiness

	if readiness.Status == ReadinessInsufficientData {
		summary.Determination = models.DeterminationInsufficientData
		summary.Reason = readiness.Reason
		r.recordDetermination(ctx)
		summary.finalize()
		r.emitCompleted()
		return summary, nil
	}

	places := r.selectPlaces()
	topics := r.selectTopics()

	if len(places) == 0 && len(topics) == 0 {
		summary.Determination = models.DeterminationProcessed
		summary.Reason = "nothing to process: no places or topics selected"
		r.recordDetermination(ctx)
		summary.finalize()
		r.emitCompleted()
		return summary, nil
	}

	r.processUnits(ctx, r.buildUnits(places, topics))
	r.settle(ctx, readiness)

	summary.finalize()
	r.emitCompleted()
	return summary, nil
}

// assessReadiness collects store metrics and applies the readiness rules.
func (p *Processor) assessReadiness(ctx context.Context, domain Domain, opts Options) (Readiness, error) {
	fetchCount, err := p.repos.Fetch.CountByDomain(ctx, domain.Host)
	if err != nil {
		return Readiness{}, err
	}
	candidateCount, err := p.repos.Candidate.CountByDomain(ctx, domain.Host)
	if err != nil {
		return Readiness{}, err
	}
	hubCount, err := p.repos.Hub.CountByDomain(ctx, domain.Host)
	if err != nil {
		return Readiness{}, err
	}
	latest, err := p.repos.Determination.Latest(ctx, domain.Host)
	if err != nil {
		return Readiness{}, err
	}

	return AssessReadiness(ReadinessInput{
		Domain:              domain,
		Kinds:               opts.Kinds,
		FetchHistory:        fetchCount,
		CandidateCount:      candidateCount,
		HubCount:            hubCount,
		DSPL:                p.analyzers.Library.Summarize(domain.Host),
		LatestDetermination: latest,
		ProbeTimedOut:       opts.ProbeTimedOut,
	}), nil
}

// selectPlaces consults the gazetteer per requested kind, deduplicating by
// (kind, slug) across repeated kinds.
func (r *run) selectPlaces() []models.Place {
	seenKinds := make(map[models.PlaceKind]bool)
	seen := make(map[string]bool)
	var out []models.Place

	for _, kind := range r.opts.Kinds {
		if seenKinds[kind] {
			continue
		}
		seenKinds[kind] = true

		switch kind {
		case models.PlaceKindCountry, models.PlaceKindRegion, models.PlaceKindCity:
		default:
			r.summary.addDecision("unsupported-kind", fmt.Sprintf("kind %q is not supported", kind))
			continue
		}

		for _, place := range r.p.analyzers.PlacesByKind(kind, r.opts.PlaceLimit) {
			key := string(kind) + ":" + hub.Slugify(place.Name)
			if seen[key] {
				r.summary.update(func(s *Summary) { s.SkippedDuplicatePlace++ })
				continue
			}
			seen[key] = true
			out = append(out, place)
		}
	}

	r.summary.update(func(s *Summary) { s.TotalPlaces = len(out) })
	return out
}

// selectTopics returns the topic set when topic or combination discovery
// is on, filtered to explicit slugs when given.
func (r *run) selectTopics() []models.Topic {
	if !r.opts.EnableTopicDiscovery && !r.opts.EnableCombinationDiscovery && len(r.opts.TopicSlugs) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(r.opts.TopicSlugs))
	for _, slug := range r.opts.TopicSlugs {
		wanted[slug] = true
	}

	seen := make(map[string]bool)
	var out []models.Topic
	for _, topic := range r.p.analyzers.AllTopics() {
		if len(wanted) > 0 && !wanted[topic.Slug] {
			continue
		}
		if seen[topic.Slug] {
			r.summary.update(func(s *Summary) { s.SkippedDuplicateTopic++ })
			continue
		}
		seen[topic.Slug] = true
		out = append(out, topic)
	}

	r.summary.update(func(s *Summary) { s.TotalTopics = len(out) })
	return out
}

// buildUnits expands places and topics into processing units in stage
// order: places, then topics, then combinations.
func (r *run) buildUnits(places []models.Place, topics []models.Topic) []unit {
	var units []unit
	for i := range places {
		units = append(units, unit{place: &places[i]})
	}

	topicHubs := r.opts.EnableTopicDiscovery || (len(r.opts.TopicSlugs) > 0 && !r.opts.EnableCombinationDiscovery)
	if topicHubs {
		for i := range topics {
			units = append(units, unit{topic: &topics[i]})
		}
	}

	if r.opts.EnableCombinationDiscovery {
		seen := make(map[string]bool)
		for i := range places {
			for j := range topics {
				key := hub.Slugify(places[i].Name) + "/" + topics[j].Slug
				if seen[key] {
					r.summary.update(func(s *Summary) { s.SkippedDuplicateCombination++ })
					continue
				}
				seen[key] = true
				units = append(units, unit{place: &places[i], topic: &topics[j]})
			}
		}
	}
	return units
}

// processUnits runs each unit's candidates through a bounded worker pool.
// Units are sequential; the pool bounds in-flight candidates within one
// unit. The abort flag is honored before any unit's candidates are
// enumerated.
func (r *run) processUnits(ctx context.Context, units []unit) {
	for _, u := range units {
		if r.aborted() {
			return
		}

		candidates := r.enumerate(u)
		if len(candidates) == 0 {
			continue
		}
		r.summary.update(func(s *Summary) { s.TotalURLs += len(candidates) })

		queue := make(chan models.Candidate, len(candidates))
		for _, c := range candidates {
			queue <- c
		}
		close(queue)

		var wg sync.WaitGroup
		for w := 0; w < r.opts.Concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for c := range queue {
					if r.aborted() {
						return
					}
					if err := r.control.WaitIfPaused(ctx); err != nil {
						return
					}
					r.processCandidate(ctx, u, c)
				}
			}()
		}
		wg.Wait()

		r.emit(models.EventProgress, "unit-processed", map[string]any{
			"unit": u.describe(), "candidates": len(candidates),
		})
	}
}

func (r *run) aborted() bool {
	return r.control.Aborted() || r.rateLimited.Load() || r.budgetHit.Load()
}

// enumerate turns one unit into its deduplicated, truncated candidate
// list. The dedup set is per-unit; the same URL may reappear for another
// place with different signals.
func (r *run) enumerate(u unit) []models.Candidate {
	var preds []models.Prediction
	switch {
	case u.place != nil && u.topic != nil:
		preds = r.p.analyzers.PredictCombinationHubURLs(r.domain.Host, *u.place, *u.topic)
	case u.topic != nil:
		preds = r.p.analyzers.PredictTopicHubURLs(r.domain.Host, *u.topic)
	default:
		preds = r.p.analyzers.PredictPlaceHubURLs(r.domain.Host, *u.place)
	}

	seen := make(map[string]bool)
	var out []models.Candidate
	for _, pred := range preds {
		canonical, err := r.domain.CanonicalURL(pred.URL)
		if err != nil {
			r.p.logger.Warn("dropping unparseable prediction", "url", pred.URL, "error", err)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true

		c := models.Candidate{
			Domain:       r.domain.Host,
			CanonicalURL: canonical,
			Analyzer:     pred.Analyzer,
			Strategy:     pred.Strategy,
			Score:        pred.Score,
			Confidence:   pred.Confidence,
			Pattern:      pred.Pattern,
			AttemptID:    r.summary.AttemptID,
		}
		if u.place != nil {
			c.PlaceKind = string(u.place.Kind)
			c.PlaceName = u.place.Name
			c.PlaceCode = u.place.Code
		}
		if u.topic != nil {
			c.TopicSlug = u.topic.Slug
		}
		out = append(out, c)

		if len(out) >= r.opts.PatternsPerPlace {
			break
		}
	}
	return out
}

// processCandidate runs one candidate through save, cache policy, fetch,
// validation and persistence. Network failures never escape; they land in
// the summary.
func (r *run) processCandidate(ctx context.Context, u unit, c models.Candidate) {
	if r.p.fetcher.BudgetExhausted() {
		if r.budgetHit.CompareAndSwap(false, true) {
			r.summary.addDecision("download-budget", "global download budget exhausted")
		}
		return
	}

	if err := r.p.repos.Candidate.Save(ctx, &c); err != nil {
		r.storeError("save candidate", c.CanonicalURL, err)
		return
	}

	latest, err := r.p.repos.Fetch.LatestFetch(ctx, c.CanonicalURL)
	if err != nil {
		r.storeError("latest fetch", c.CanonicalURL, err)
		return
	}

	switch r.p.policy.Decide(latest, time.Now().UTC()) {
	case DecideCachedOK:
		r.markCandidate(ctx, c, models.CandidateStatusCachedOK, latest.HTTPStatus, "")
		r.summary.update(func(s *Summary) { s.Cached++ })
		return
	case DecideCached404:
		r.markCandidate(ctx, c, models.CandidateStatusCached404, 404, "")
		r.summary.update(func(s *Summary) { s.Skipped++ })
		return
	case DecideCached4xx:
		r.markCandidate(ctx, c, models.CandidateStatusCached4xx, latest.HTTPStatus, "")
		r.summary.update(func(s *Summary) { s.SkippedRecent4xx++ })
		return
	}

	result, err := r.p.fetcher.Fetch(ctx, c.CanonicalURL, fetch.Options{Timeout: r.opts.FetchTimeout})
	if err != nil {
		// Malformed URL slipped past canonicalization.
		r.storeError("fetch", c.CanonicalURL, err)
		return
	}
	r.summary.update(func(s *Summary) { s.Fetched++ })

	validation := r.validate(u, result)
	r.recordFetch(ctx, c, result, validation.Title)

	r.emit(models.EventTelemetry, "page-fetched", map[string]any{
		"url": c.CanonicalURL, "status": result.HTTPStatus, "ms": result.Metrics.TotalMs,
	})

	switch {
	case !result.OK:
		r.markCandidate(ctx, c, models.CandidateStatusFetchError, result.HTTPStatus, result.Error)
		r.summary.update(func(s *Summary) { s.Errors++ })
		return
	case result.HTTPStatus == 404:
		r.markCandidate(ctx, c, models.CandidateStatusFetchedError, 404, "")
		r.summary.update(func(s *Summary) { s.Stored404++ })
		return
	case result.HTTPStatus == 429:
		r.markCandidate(ctx, c, models.CandidateStatusFetchedError, 429, "rate limited")
		if r.rateLimited.CompareAndSwap(false, true) {
			r.summary.update(func(s *Summary) { s.RateLimited++ })
			r.summary.addDecision("rate-limited", fmt.Sprintf("%s returned 429 for %s", r.domain.Host, c.CanonicalURL))
		}
		return
	case result.HTTPStatus < 200 || result.HTTPStatus >= 300:
		r.markCandidate(ctx, c, models.CandidateStatusFetchedError, result.HTTPStatus, "")
		r.summary.update(func(s *Summary) { s.Errors++ })
		return
	}

	r.markCandidate(ctx, c, models.CandidateStatusFetchedOK, result.HTTPStatus, "")
	r.finishValidation(ctx, u, c, validation)
}

// validate picks the entry point for the unit type. Pure; no suspension.
func (r *run) validate(u unit, result *fetch.Result) hub.Validation {
	exp := hub.Expectation{Domain: r.domain.Host}
	if u.place != nil {
		exp.PlaceName = u.place.Name
		exp.PlaceSlug = hub.Slugify(u.place.Name)
	}
	if u.topic != nil {
		exp.TopicSlug = u.topic.Slug
		exp.TopicLabel = u.topic.Label
	}

	switch {
	case u.place != nil && u.topic != nil:
		return hub.ValidatePlaceTopicHub(result.Body, exp)
	case u.topic != nil:
		return hub.ValidateTopicHub(result.Body, exp)
	default:
		return hub.ValidatePlaceHub(result.Body, exp)
	}
}

// finishValidation persists the verdict, upserts the hub on accept and
// writes the audit entry either way.
func (r *run) finishValidation(ctx context.Context, u unit, c models.Candidate, v hub.Validation) {
	signals, _ := json.Marshal(v)

	status := models.CandidateStatusValidated
	validationStatus := "valid"
	if !v.IsValid {
		status = models.CandidateStatusValidationFailed
		validationStatus = "invalid: " + v.Reason
	}

	if err := r.p.repos.Candidate.UpdateValidation(ctx, repository.CandidateValidationUpdate{
		Domain:           c.Domain,
		CanonicalURL:     c.CanonicalURL,
		Status:           status,
		ValidationStatus: validationStatus,
		Confidence:       v.Confidence,
		SignalsJSON:      string(signals),
	}); err != nil {
		r.storeError("update validation", c.CanonicalURL, err)
	}

	if v.IsValid {
		r.summary.update(func(s *Summary) { s.ValidationSucceeded++ })
		if r.opts.Apply {
			r.upsertHub(ctx, u, c, v, string(signals))
		}
	} else {
		r.summary.bucketFailure(v.Reason)
	}

	decision := models.AuditAccepted
	if !v.IsValid {
		decision = models.AuditRejected
	}
	if err := r.p.repos.Audit.Append(ctx, &models.AuditEntry{
		RunID:                 r.summary.RunID,
		AttemptID:             r.summary.AttemptID,
		Domain:                c.Domain,
		URL:                   c.CanonicalURL,
		PlaceKind:             c.PlaceKind,
		PlaceName:             c.PlaceName,
		Decision:              decision,
		ValidationMetricsJSON: string(signals),
	}); err != nil {
		r.storeError("append audit", c.CanonicalURL, err)
	}
}

// upsertHub inserts a new hub or updates an existing one, writing only
// when a tracked field actually changed.
func (r *run) upsertHub(ctx context.Context, u unit, c models.Candidate, v hub.Validation, evidence string) {
	next := &models.Hub{
		Domain:            c.Domain,
		URL:               c.CanonicalURL,
		PlaceKind:         c.PlaceKind,
		Title:             v.Title,
		NavLinksCount:     v.NavLinkCount,
		ArticleLinksCount: v.ArticleLinkCount,
		EvidenceJSON:      evidence,
	}
	if u.place != nil {
		next.PlaceSlug = hub.Slugify(u.place.Name)
	}
	if u.topic != nil {
		next.TopicSlug = u.topic.Slug
		next.TopicLabel = u.topic.Label
	}

	prev, err := r.p.repos.Hub.GetByURL(ctx, c.Domain, c.CanonicalURL)
	if err != nil {
		r.storeError("get hub", c.CanonicalURL, err)
		return
	}

	if prev == nil {
		if err := r.p.repos.Hub.Insert(ctx, next); err != nil {
			r.storeError("insert hub", c.CanonicalURL, err)
			return
		}
		r.summary.update(func(s *Summary) {
			s.InsertedHubs++
			s.DiffPreview.Inserted = append(s.DiffPreview.Inserted, c.CanonicalURL)
		})
		r.emit(models.EventMilestone, "hub-inserted", map[string]any{"url": c.CanonicalURL})
		return
	}

	changed := collectHubChanges(prev, next)
	if len(changed) == 0 {
		return
	}

	if err := r.p.repos.Hub.Update(ctx, next); err != nil {
		r.storeError("update hub", c.CanonicalURL, err)
		return
	}
	r.summary.update(func(s *Summary) {
		s.UpdatedHubs++
		s.DiffPreview.Updated = append(s.DiffPreview.Updated, DiffEntry{URL: c.CanonicalURL, Changed: changed})
	})
}

// collectHubChanges lists the tracked fields that differ between two hub
// snapshots.
func collectHubChanges(prev, next *models.Hub) []string {
	var changed []string
	if prev.PlaceSlug != next.PlaceSlug {
		changed = append(changed, "place_slug")
	}
	if prev.PlaceKind != next.PlaceKind {
		changed = append(changed, "place_kind")
	}
	if prev.TopicSlug != next.TopicSlug {
		changed = append(changed, "topic_slug")
	}
	if prev.TopicLabel != next.TopicLabel {
		changed = append(changed, "topic_label")
	}
	if prev.Title != next.Title {
		changed = append(changed, "title")
	}
	if prev.NavLinksCount != next.NavLinksCount {
		changed = append(changed, "nav_links_count")
	}
	if prev.ArticleLinksCount != next.ArticleLinksCount {
		changed = append(changed, "article_links_count")
	}
	return changed
}

// settle derives the terminal determination and writes it.
func (r *run) settle(ctx context.Context, readiness Readiness) {
	s := r.summary
	switch {
	case r.rateLimited.Load():
		s.Status = "aborted"
		s.Determination = models.DeterminationRateLimited
		s.Reason = fmt.Sprintf("%s rate-limited the crawl", r.domain.Host)
	case r.control.Aborted():
		s.Status = "aborted"
		s.Determination = models.DeterminationProcessed
		s.Reason = "stopped on request"
		s.addDecision("stopped", "stop requested while processing")
	case r.budgetHit.Load():
		s.Status = "aborted"
		s.Determination = models.DeterminationDataLimited
		s.Reason = "download budget exhausted before all candidates were processed"
	case readiness.Status == ReadinessDataLimited:
		s.Determination = models.DeterminationDataLimited
		s.Reason = readiness.Reason
	default:
		s.Determination = models.DeterminationProcessed
		s.Reason = fmt.Sprintf("processed %d candidate URLs", s.TotalURLs)
	}
	r.recordDetermination(ctx)
}

func (r *run) recordDetermination(ctx context.Context) {
	details, _ := json.Marshal(map[string]any{
		"fetched": r.summary.Fetched, "cached": r.summary.Cached,
		"inserted_hubs": r.summary.InsertedHubs, "updated_hubs": r.summary.UpdatedHubs,
	})
	if err := r.p.repos.Determination.Append(ctx, &models.DomainDetermination{
		Domain:        r.domain.Host,
		Determination: r.summary.Determination,
		Reason:        r.summary.Reason,
		Details:       string(details),
	}); err != nil {
		r.p.logger.Warn("failed to record determination", "domain", r.domain.Host, "error", err)
	}
}

func (r *run) markCandidate(ctx context.Context, c models.Candidate, status models.CandidateStatus, httpStatus int, errMsg string) {
	if err := r.p.repos.Candidate.MarkStatus(ctx, repository.CandidateStatusUpdate{
		Domain:       c.Domain,
		CanonicalURL: c.CanonicalURL,
		Status:       status,
		HTTPStatus:   httpStatus,
		ErrorMessage: errMsg,
	}); err != nil {
		r.storeError("mark status", c.CanonicalURL, err)
	}
}

func (r *run) recordFetch(ctx context.Context, c models.Candidate, result *fetch.Result, title string) {
	row := &models.FetchRow{
		URL:              c.CanonicalURL,
		Domain:           c.Domain,
		HTTPStatus:       result.HTTPStatus,
		HTTPSuccess:      result.OK && result.HTTPStatus >= 200 && result.HTTPStatus < 300,
		Title:            title,
		RequestMethod:    "GET",
		RequestStartedAt: result.Metrics.RequestStartedAt,
		FetchedAt:        result.Metrics.FetchedAt,
		BytesDownloaded:  result.Metrics.BytesDownloaded,
		ContentType:      result.Metrics.ContentType,
		ContentLength:    result.Metrics.ContentLength,
		TotalMs:          result.Metrics.TotalMs,
		DownloadMs:       result.Metrics.DownloadMs,
		RedirectCount:    result.Metrics.RedirectCount,
	}
	if err := r.p.repos.Fetch.Record(ctx, row, models.FetchTags{
		Stage:     "GET",
		AttemptID: r.summary.AttemptID,
	}); err != nil {
		r.storeError("record fetch", c.CanonicalURL, err)
	}
}

func (r *run) storeError(op, url string, err error) {
	r.p.logger.Warn("store operation failed", "op", op, "url", url, "error", err)
	r.summary.update(func(s *Summary) { s.Errors++ })
	r.emit(models.EventError, "store-error", map[string]any{"op": op, "url": url, "error": err.Error()})
}

func (r *run) emit(category models.EventCategory, eventType string, data map[string]any) {
	payload, _ := json.Marshal(data)
	severity := "info"
	if category == models.EventError {
		severity = "warn"
	}
	r.p.sink.Emit(&models.TaskEvent{
		TaskType:  "operation",
		TaskID:    r.taskID,
		EventType: eventType,
		Category:  category,
		Severity:  severity,
		DataJSON:  string(payload),
	})
}

func (r *run) emitCompleted() {
	r.emit(models.EventLifecycle, "domain-processing-completed", map[string]any{
		"domain":        r.summary.Domain,
		"determination": string(r.summary.Determination),
		"status":        r.summary.Status,
		"duration_ms":   r.summary.DurationMs,
	})
}
