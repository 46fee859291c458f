package crawl

import (
	"time"

	"github.com/newsmap/hubcrawl/internal/models"
)

// CacheDecision says what the age policy decided for a candidate.
type CacheDecision string

const (
	DecideFetch     CacheDecision = "fetch"
	DecideCachedOK  CacheDecision = "cached-ok"
	DecideCached404 CacheDecision = "cached-404"
	DecideCached4xx CacheDecision = "cached-4xx"
)

// AgePolicy holds the three freshness windows. Successful responses stay
// fresh for MaxAge, 404s are not retried within Refresh404, and other 4xx
// within Retry4xx.
type AgePolicy struct {
	MaxAge     time.Duration
	Refresh404 time.Duration
	Retry4xx   time.Duration
}

// DefaultAgePolicy returns the standard windows: 7 days for successes,
// 180 days for 404s, 7 days for other 4xx.
func DefaultAgePolicy() AgePolicy {
	return AgePolicy{
		MaxAge:     7 * 24 * time.Hour,
		Refresh404: 180 * 24 * time.Hour,
		Retry4xx:   7 * 24 * time.Hour,
	}
}

// Decide applies the policy to the latest recorded fetch. A nil latest
// always fetches.
func (p AgePolicy) Decide(latest *models.FetchRow, now time.Time) CacheDecision {
	if latest == nil {
		return DecideFetch
	}

	age := now.Sub(latest.FetchedAt)
	switch {
	case latest.HTTPStatus >= 200 && latest.HTTPStatus < 300 && age < p.MaxAge:
		return DecideCachedOK
	case latest.HTTPStatus == 404 && age < p.Refresh404:
		return DecideCached404
	case latest.HTTPStatus >= 400 && latest.HTTPStatus < 500 && age < p.Retry4xx:
		return DecideCached4xx
	default:
		return DecideFetch
	}
}
