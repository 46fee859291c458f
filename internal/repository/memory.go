package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/newsmap/hubcrawl/internal/models"
)

// NewMemoryRepositories creates in-memory repository instances. They hold
// everything in maps behind a mutex and are safe for concurrent use.
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Fetch:         NewMemoryFetchRepository(),
		Candidate:     NewMemoryCandidateRepository(),
		Hub:           NewMemoryHubRepository(),
		Audit:         NewMemoryAuditRepository(),
		Determination: NewMemoryDeterminationRepository(),
		TaskEvent:     NewMemoryTaskEventRepository(),
	}
}

// MemoryFetchRepository is an in-memory FetchRepository.
type MemoryFetchRepository struct {
	mu   sync.Mutex
	rows []*models.FetchRow
}

func NewMemoryFetchRepository() *MemoryFetchRepository {
	return &MemoryFetchRepository{}
}

func (r *MemoryFetchRepository) Record(_ context.Context, row *models.FetchRow, _ models.FetchTags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.ID == "" {
		row.ID = ulid.Make().String()
	}
	if row.FetchedAt.IsZero() {
		row.FetchedAt = time.Now().UTC()
	}
	clone := *row
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *MemoryFetchRepository) LatestFetch(_ context.Context, url string) (*models.FetchRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.FetchRow
	for _, row := range r.rows {
		if row.URL != url {
			continue
		}
		if latest == nil || row.FetchedAt.After(latest.FetchedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (r *MemoryFetchRepository) CountByDomain(_ context.Context, domain string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.rows {
		if row.Domain == domain {
			count++
		}
	}
	return count, nil
}

// All returns a snapshot of every recorded row. Test helper.
func (r *MemoryFetchRepository) All() []*models.FetchRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.FetchRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// MemoryCandidateRepository is an in-memory CandidateRepository.
type MemoryCandidateRepository struct {
	mu         sync.Mutex
	candidates map[string]*models.Candidate // keyed by domain + "\x00" + canonical URL
}

func NewMemoryCandidateRepository() *MemoryCandidateRepository {
	return &MemoryCandidateRepository{candidates: make(map[string]*models.Candidate)}
}

func candidateKey(domain, canonicalURL string) string {
	return domain + "\x00" + canonicalURL
}

func (r *MemoryCandidateRepository) Save(_ context.Context, c *models.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	key := candidateKey(c.Domain, c.CanonicalURL)
	if existing, ok := r.candidates[key]; ok {
		existing.PlaceKind = c.PlaceKind
		existing.PlaceName = c.PlaceName
		existing.PlaceCode = c.PlaceCode
		existing.TopicSlug = c.TopicSlug
		existing.Analyzer = c.Analyzer
		existing.Strategy = c.Strategy
		existing.Score = c.Score
		existing.Confidence = c.Confidence
		existing.Pattern = c.Pattern
		existing.SignalsJSON = c.SignalsJSON
		existing.AttemptID = c.AttemptID
		existing.LastSeenAt = now
		return nil
	}
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.Status == "" {
		c.Status = models.CandidateStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastSeenAt.IsZero() {
		c.LastSeenAt = now
	}
	clone := *c
	r.candidates[key] = &clone
	return nil
}

func (r *MemoryCandidateRepository) MarkStatus(_ context.Context, u CandidateStatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[candidateKey(u.Domain, u.CanonicalURL)]
	if !ok {
		return fmt.Errorf("candidate not found: %s", u.CanonicalURL)
	}
	c.Status = u.Status
	c.HTTPStatus = u.HTTPStatus
	c.ErrorMessage = u.ErrorMessage
	c.LastSeenAt = orNow(u.LastSeenAt)
	return nil
}

func (r *MemoryCandidateRepository) UpdateValidation(_ context.Context, u CandidateValidationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[candidateKey(u.Domain, u.CanonicalURL)]
	if !ok {
		return fmt.Errorf("candidate not found: %s", u.CanonicalURL)
	}
	c.Status = u.Status
	c.ValidationStatus = u.ValidationStatus
	c.Confidence = u.Confidence
	c.SignalsJSON = u.SignalsJSON
	c.LastSeenAt = orNow(u.LastSeenAt)
	return nil
}

func (r *MemoryCandidateRepository) GetByURL(_ context.Context, domain, canonicalURL string) (*models.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[candidateKey(domain, canonicalURL)]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (r *MemoryCandidateRepository) CountByDomain(_ context.Context, domain string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, c := range r.candidates {
		if c.Domain == domain {
			count++
		}
	}
	return count, nil
}

// MemoryHubRepository is an in-memory HubRepository.
type MemoryHubRepository struct {
	mu   sync.Mutex
	hubs map[string]*models.Hub
}

func NewMemoryHubRepository() *MemoryHubRepository {
	return &MemoryHubRepository{hubs: make(map[string]*models.Hub)}
}

func (r *MemoryHubRepository) GetByURL(_ context.Context, domain, url string) (*models.Hub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[candidateKey(domain, url)]
	if !ok {
		return nil, nil
	}
	clone := *h
	return &clone, nil
}

func (r *MemoryHubRepository) Insert(_ context.Context, hub *models.Hub) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := candidateKey(hub.Domain, hub.URL)
	if _, ok := r.hubs[key]; ok {
		return fmt.Errorf("hub already exists: %s", hub.URL)
	}
	if hub.ID == "" {
		hub.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if hub.CreatedAt.IsZero() {
		hub.CreatedAt = now
	}
	hub.UpdatedAt = now
	clone := *hub
	r.hubs[key] = &clone
	return nil
}

func (r *MemoryHubRepository) Update(_ context.Context, hub *models.Hub) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := candidateKey(hub.Domain, hub.URL)
	existing, ok := r.hubs[key]
	if !ok {
		return fmt.Errorf("hub not found: %s", hub.URL)
	}
	hub.ID = existing.ID
	hub.CreatedAt = existing.CreatedAt
	hub.UpdatedAt = time.Now().UTC()
	clone := *hub
	r.hubs[key] = &clone
	return nil
}

func (r *MemoryHubRepository) ListByDomain(_ context.Context, domain string) ([]*models.Hub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Hub
	for _, h := range r.hubs {
		if h.Domain == domain {
			clone := *h
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (r *MemoryHubRepository) CountByDomain(_ context.Context, domain string) (int, error) {
	hubs, _ := r.ListByDomain(context.Background(), domain)
	return len(hubs), nil
}

// MemoryAuditRepository is an in-memory AuditRepository.
type MemoryAuditRepository struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Append(_ context.Context, e *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	clone := *e
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *MemoryAuditRepository) ListByRun(_ context.Context, runID string) ([]*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range r.entries {
		if e.RunID == runID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

// MemoryDeterminationRepository is an in-memory DeterminationRepository.
type MemoryDeterminationRepository struct {
	mu             sync.Mutex
	determinations []*models.DomainDetermination
}

func NewMemoryDeterminationRepository() *MemoryDeterminationRepository {
	return &MemoryDeterminationRepository{}
}

func (r *MemoryDeterminationRepository) Append(_ context.Context, d *models.DomainDetermination) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	clone := *d
	r.determinations = append(r.determinations, &clone)
	return nil
}

func (r *MemoryDeterminationRepository) Latest(_ context.Context, domain string) (*models.DomainDetermination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.DomainDetermination
	for _, d := range r.determinations {
		if d.Domain != domain {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) || (d.CreatedAt.Equal(latest.CreatedAt) && d.ID > latest.ID) {
			latest = d
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

// MemoryTaskEventRepository is an in-memory TaskEventRepository.
type MemoryTaskEventRepository struct {
	mu     sync.Mutex
	events []*models.TaskEvent
}

func NewMemoryTaskEventRepository() *MemoryTaskEventRepository {
	return &MemoryTaskEventRepository{}
}

func (r *MemoryTaskEventRepository) Append(_ context.Context, e *models.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.append(e)
	return nil
}

func (r *MemoryTaskEventRepository) AppendBatch(_ context.Context, events []*models.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		r.append(e)
	}
	return nil
}

func (r *MemoryTaskEventRepository) append(e *models.TaskEvent) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = "info"
	}
	clone := *e
	r.events = append(r.events, &clone)
}

func (r *MemoryTaskEventRepository) GetAfterID(_ context.Context, taskID, afterID string) ([]*models.TaskEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TaskEvent
	for _, e := range r.events {
		if e.TaskID == taskID && e.ID > afterID {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryTaskEventRepository) LastByTask(_ context.Context, taskType string) ([]*models.TaskEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := make(map[string]*models.TaskEvent)
	for _, e := range r.events {
		if e.TaskType != taskType {
			continue
		}
		if prev, ok := last[e.TaskID]; !ok || e.ID > prev.ID {
			last[e.TaskID] = e
		}
	}
	var out []*models.TaskEvent
	for _, e := range last {
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
