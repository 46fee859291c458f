// Package models defines the data entities persisted by the crawler.
package models

import "time"

// PlaceKind classifies a geographic place.
type PlaceKind string

const (
	PlaceKindCountry PlaceKind = "country"
	PlaceKindRegion  PlaceKind = "region"
	PlaceKindCity    PlaceKind = "city"
)

// Place is a geographic entity supplied by analyzers. Read-only to the core.
type Place struct {
	Kind       PlaceKind `json:"kind"`
	Name       string    `json:"name"`
	Code       string    `json:"code,omitempty"`
	ParentCode string    `json:"parent_code,omitempty"`
	Importance float64   `json:"importance"` // [0,1]
}

// Topic is a non-geographic subject slug.
type Topic struct {
	Slug     string `json:"slug"`
	Label    string `json:"label"`
	Category string `json:"category,omitempty"`
	Language string `json:"language,omitempty"`
}

// Prediction is a candidate URL produced by an analyzer. Transient until
// persisted as a Candidate.
type Prediction struct {
	URL        string  `json:"url"`
	Analyzer   string  `json:"analyzer,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	Pattern    string  `json:"pattern,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// CandidateStatus enumerates the candidate state machine. Transitions are
// monotone within one attempt:
// pending -> cached-ok | cached-404 | cached-4xx
//
//	| fetched-ok -> validated | validation-failed
//	| fetched-error | fetch-error
type CandidateStatus string

const (
	CandidateStatusPending          CandidateStatus = "pending"
	CandidateStatusCachedOK         CandidateStatus = "cached-ok"
	CandidateStatusCached404        CandidateStatus = "cached-404"
	CandidateStatusCached4xx        CandidateStatus = "cached-4xx"
	CandidateStatusFetchedOK        CandidateStatus = "fetched-ok"
	CandidateStatusFetchedError     CandidateStatus = "fetched-error"
	CandidateStatusFetchError       CandidateStatus = "fetch-error"
	CandidateStatusValidated        CandidateStatus = "validated"
	CandidateStatusValidationFailed CandidateStatus = "validation-failed"
)

// Candidate is a predicted hub URL with its signals and validation outcome.
// (domain, canonical_url) is unique.
type Candidate struct {
	ID               string          `json:"id"`
	Domain           string          `json:"domain"`
	CanonicalURL     string          `json:"canonical_url"`
	PlaceKind        string          `json:"place_kind,omitempty"`
	PlaceName        string          `json:"place_name,omitempty"`
	PlaceCode        string          `json:"place_code,omitempty"`
	TopicSlug        string          `json:"topic_slug,omitempty"`
	Analyzer         string          `json:"analyzer"`
	Strategy         string          `json:"strategy"`
	Score            float64         `json:"score,omitempty"`
	Confidence       float64         `json:"confidence,omitempty"`
	Pattern          string          `json:"pattern,omitempty"`
	SignalsJSON      string          `json:"signals_json,omitempty"`
	Status           CandidateStatus `json:"status"`
	HTTPStatus       int             `json:"http_status,omitempty"`
	ValidationStatus string          `json:"validation_status,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	AttemptID        string          `json:"attempt_id"`
	LastSeenAt       time.Time       `json:"last_seen_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// FetchRow is one recorded HTTP fetch. Append-only; "latest per URL" is
// max(fetched_at).
type FetchRow struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	Domain           string    `json:"domain"`
	HTTPStatus       int       `json:"http_status"`
	HTTPSuccess      bool      `json:"http_success"`
	Title            string    `json:"title,omitempty"`
	RequestMethod    string    `json:"request_method"`
	RequestStartedAt time.Time `json:"request_started_at"`
	FetchedAt        time.Time `json:"fetched_at"`
	BytesDownloaded  int64     `json:"bytes_downloaded"`
	ContentType      string    `json:"content_type,omitempty"`
	ContentLength    int64     `json:"content_length,omitempty"`
	TotalMs          int64     `json:"total_ms"`
	DownloadMs       int64     `json:"download_ms"`
	RedirectCount    int       `json:"redirect_count"`
}

// FetchTags annotate a recorded fetch with pipeline context.
type FetchTags struct {
	Stage     string `json:"stage"`
	AttemptID string `json:"attempt_id"`
	CacheHit  bool   `json:"cache_hit"`
}

// Hub is a validated structural page. Upsert key is (domain, url).
type Hub struct {
	ID                string    `json:"id"`
	Domain            string    `json:"domain"`
	URL               string    `json:"url"`
	PlaceSlug         string    `json:"place_slug,omitempty"`
	PlaceKind         string    `json:"place_kind,omitempty"`
	TopicSlug         string    `json:"topic_slug,omitempty"`
	TopicLabel        string    `json:"topic_label,omitempty"`
	Title             string    `json:"title,omitempty"`
	NavLinksCount     int       `json:"nav_links_count"`
	ArticleLinksCount int       `json:"article_links_count"`
	EvidenceJSON      string    `json:"evidence_json,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AuditDecision is the validation verdict recorded for a candidate.
type AuditDecision string

const (
	AuditAccepted AuditDecision = "accepted"
	AuditRejected AuditDecision = "rejected"
)

// AuditEntry records one validation outcome. Append-only, ordered by
// created_at.
type AuditEntry struct {
	ID                    string        `json:"id"`
	RunID                 string        `json:"run_id"`
	AttemptID             string        `json:"attempt_id"`
	Domain                string        `json:"domain"`
	URL                   string        `json:"url"`
	PlaceKind             string        `json:"place_kind,omitempty"`
	PlaceName             string        `json:"place_name,omitempty"`
	Decision              AuditDecision `json:"decision"`
	ValidationMetricsJSON string        `json:"validation_metrics_json,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

// Determination is the terminal verdict on a domain for one run.
type Determination string

const (
	DeterminationProcessed        Determination = "processed"
	DeterminationRateLimited      Determination = "rate-limited"
	DeterminationInsufficientData Determination = "insufficient-data"
	DeterminationDataLimited      Determination = "data-limited"
	DeterminationError            Determination = "error"
)

// DomainDetermination records a run's verdict on a domain. Append-only;
// "latest" is max(created_at) per domain.
type DomainDetermination struct {
	ID            string        `json:"id"`
	Domain        string        `json:"domain"`
	Determination Determination `json:"determination"`
	Reason        string        `json:"reason"`
	Details       string        `json:"details,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// EventCategory classifies a task event.
type EventCategory string

const (
	EventLifecycle EventCategory = "lifecycle"
	EventProgress  EventCategory = "progress"
	EventTelemetry EventCategory = "telemetry"
	EventMilestone EventCategory = "milestone"
	EventError     EventCategory = "error"
)

// TaskEvent is one entry in the append-only task event time series.
// Ordering within a task_id is preserved (ULID ids are time-ordered).
type TaskEvent struct {
	ID        string        `json:"id"`
	TaskType  string        `json:"task_type"`
	TaskID    string        `json:"task_id"`
	EventType string        `json:"event_type"`
	Category  EventCategory `json:"category"`
	Severity  string        `json:"severity"`
	DataJSON  string        `json:"data_json,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
