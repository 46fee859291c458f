// Package repository defines repository interfaces for data access.
// Each interface has a SQLite implementation (default) and an in-memory
// implementation used by pipeline tests.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/newsmap/hubcrawl/internal/models"
)

// FetchRepository records fetch history and answers latest-per-URL lookups.
type FetchRepository interface {
	// Record appends a fetch row. The row goes to the normalized store
	// first, then to the legacy mirror; mirror failures are warnings.
	Record(ctx context.Context, row *models.FetchRow, tags models.FetchTags) error
	// LatestFetch returns the most recent row for a URL, or nil.
	LatestFetch(ctx context.Context, url string) (*models.FetchRow, error)
	// CountByDomain returns how many fetches exist for a domain.
	CountByDomain(ctx context.Context, domain string) (int, error)
}

// CandidateStatusUpdate mutates status fields of a candidate.
type CandidateStatusUpdate struct {
	Domain       string
	CanonicalURL string
	Status       models.CandidateStatus
	HTTPStatus   int
	ErrorMessage string
	LastSeenAt   time.Time
}

// CandidateValidationUpdate mutates validation fields of a candidate.
type CandidateValidationUpdate struct {
	Domain           string
	CanonicalURL     string
	Status           models.CandidateStatus
	ValidationStatus string
	Confidence       float64
	SignalsJSON      string
	LastSeenAt       time.Time
}

// CandidateRepository persists predicted URLs.
type CandidateRepository interface {
	// Save upserts by (domain, canonical_url); on conflict the signals
	// payload is replaced and last_seen_at refreshed.
	Save(ctx context.Context, c *models.Candidate) error
	MarkStatus(ctx context.Context, u CandidateStatusUpdate) error
	UpdateValidation(ctx context.Context, u CandidateValidationUpdate) error
	GetByURL(ctx context.Context, domain, canonicalURL string) (*models.Candidate, error)
	CountByDomain(ctx context.Context, domain string) (int, error)
}

// HubRepository stores validated hubs. Upsert key is (domain, url); the
// caller diffs against the prior snapshot and only writes real changes.
type HubRepository interface {
	GetByURL(ctx context.Context, domain, url string) (*models.Hub, error)
	Insert(ctx context.Context, hub *models.Hub) error
	Update(ctx context.Context, hub *models.Hub) error
	ListByDomain(ctx context.Context, domain string) ([]*models.Hub, error)
	CountByDomain(ctx context.Context, domain string) (int, error)
}

// AuditRepository appends validation audit entries.
type AuditRepository interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	ListByRun(ctx context.Context, runID string) ([]*models.AuditEntry, error)
}

// DeterminationRepository records per-run domain verdicts.
type DeterminationRepository interface {
	Append(ctx context.Context, d *models.DomainDetermination) error
	// Latest returns the most recent determination for a domain, or nil.
	Latest(ctx context.Context, domain string) (*models.DomainDetermination, error)
}

// TaskEventRepository is the append-only task event log.
type TaskEventRepository interface {
	Append(ctx context.Context, e *models.TaskEvent) error
	// AppendBatch writes a batch in one transaction (bulk crawls).
	AppendBatch(ctx context.Context, events []*models.TaskEvent) error
	// GetAfterID returns events for a task with ID greater than afterID.
	// Pass empty string for afterID to get all events. Works because IDs
	// are ULIDs which are lexicographically time-ordered.
	GetAfterID(ctx context.Context, taskID, afterID string) ([]*models.TaskEvent, error)
	// LastByTask returns the most recent event per task_id of a task type.
	LastByTask(ctx context.Context, taskType string) ([]*models.TaskEvent, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Fetch         FetchRepository
	Candidate     CandidateRepository
	Hub           HubRepository
	Audit         AuditRepository
	Determination DeterminationRepository
	TaskEvent     TaskEventRepository
}

// NewRepositories creates all SQLite repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Fetch:         NewSQLiteFetchRepository(db, nil),
		Candidate:     NewSQLiteCandidateRepository(db),
		Hub:           NewSQLiteHubRepository(db),
		Audit:         NewSQLiteAuditRepository(db),
		Determination: NewSQLiteDeterminationRepository(db),
		TaskEvent:     NewSQLiteTaskEventRepository(db),
	}
}

// Helper functions shared by the SQLite implementations.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
