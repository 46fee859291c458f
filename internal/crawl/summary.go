package crawl

import (
	"sync"
	"time"

	"github.com/newsmap/hubcrawl/internal/models"
)

// DiffEntry records one hub update with the fields that changed.
type DiffEntry struct {
	URL     string   `json:"url"`
	Changed []string `json:"changed"`
}

// DiffPreview lists the hub writes a run performed (or would perform with
// apply=false the lists stay empty).
type DiffPreview struct {
	Inserted []string    `json:"inserted"`
	Updated  []DiffEntry `json:"updated"`
}

// DecisionEntry is one pipeline-level decision, e.g. a rate-limit abort.
type DecisionEntry struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary accumulates the counters for one domain run. Safe for
// concurrent updates by pipeline workers.
type Summary struct {
	mu sync.Mutex

	Domain    string `json:"domain"`
	RunID     string `json:"run_id"`
	AttemptID string `json:"attempt_id"`

	TotalPlaces int `json:"total_places"`
	TotalTopics int `json:"total_topics"`
	TotalURLs   int `json:"total_urls"`

	Fetched          int `json:"fetched"`
	Cached           int `json:"cached"`
	Skipped          int `json:"skipped"`
	SkippedRecent4xx int `json:"skipped_recent_4xx"`
	Stored404        int `json:"stored_404"`
	Errors           int `json:"errors"`
	RateLimited      int `json:"rate_limited"`

	SkippedDuplicatePlace       int `json:"skipped_duplicate_place"`
	SkippedDuplicateTopic       int `json:"skipped_duplicate_topic"`
	SkippedDuplicateCombination int `json:"skipped_duplicate_combination"`

	InsertedHubs        int            `json:"inserted_hubs"`
	UpdatedHubs         int            `json:"updated_hubs"`
	ValidationSucceeded int            `json:"validation_succeeded"`
	ValidationFailed    int            `json:"validation_failed"`
	FailureReasons      map[string]int `json:"validation_failure_reasons"`

	DiffPreview DiffPreview     `json:"diff_preview"`
	Decisions   []DecisionEntry `json:"decisions"`

	Determination models.Determination `json:"determination"`
	Reason        string               `json:"reason"`
	Readiness     *Readiness           `json:"readiness,omitempty"`
	Status        string               `json:"status"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

func newSummary(domain, runID, attemptID string) *Summary {
	return &Summary{
		Domain:         domain,
		RunID:          runID,
		AttemptID:      attemptID,
		FailureReasons: make(map[string]int),
		DiffPreview:    DiffPreview{Inserted: []string{}, Updated: []DiffEntry{}},
		Decisions:      []DecisionEntry{},
		Status:         "ok",
		StartedAt:      time.Now().UTC(),
	}
}

// update applies a mutation under the summary lock.
func (s *Summary) update(fn func(*Summary)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// addDecision appends a pipeline decision.
func (s *Summary) addDecision(decisionType, reason string) {
	s.update(func(s *Summary) {
		s.Decisions = append(s.Decisions, DecisionEntry{
			Type:      decisionType,
			Reason:    reason,
			CreatedAt: time.Now().UTC(),
		})
	})
}

// bucketFailure counts a validation rejection reason.
func (s *Summary) bucketFailure(reason string) {
	s.update(func(s *Summary) {
		s.ValidationFailed++
		s.FailureReasons[reason]++
	})
}

// finalize stamps completion time and duration.
func (s *Summary) finalize() {
	s.update(func(s *Summary) {
		s.CompletedAt = time.Now().UTC()
		s.DurationMs = s.CompletedAt.Sub(s.StartedAt).Milliseconds()
	})
}
