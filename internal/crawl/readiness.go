package crawl

import (
	"fmt"

	"github.com/newsmap/hubcrawl/internal/models"
	"github.com/newsmap/hubcrawl/internal/predict"
)

// Readiness statuses.
const (
	ReadinessReady            = "ready"
	ReadinessDataLimited      = "data-limited"
	ReadinessInsufficientData = "insufficient-data"
)

// ReadinessInput gathers the signals the assessor needs.
type ReadinessInput struct {
	Domain              Domain
	Kinds               []models.PlaceKind
	FetchHistory        int
	CandidateCount      int
	HubCount            int
	DSPL                predict.Summary
	LatestDetermination *models.DomainDetermination
	ProbeTimedOut       bool
}

// Readiness is the assessor's verdict on whether a domain has enough
// signal to attempt hub discovery.
type Readiness struct {
	Status          string          `json:"status"`
	Reason          string          `json:"reason"`
	Recommendations []string        `json:"recommendations"`
	DSPL            predict.Summary `json:"dspl"`
}

// AssessReadiness applies the readiness rules. insufficient-data forces an
// early return from domain processing.
func AssessReadiness(in ReadinessInput) Readiness {
	host := in.Domain.Host
	verified := in.DSPL.VerifiedPatterns > 0
	coverage := in.HubCount > 0
	history := in.FetchHistory > 0 || in.CandidateCount > 0

	r := Readiness{DSPL: in.DSPL, Recommendations: []string{}}

	switch {
	case !verified && !coverage && !history:
		r.Status = ReadinessInsufficientData
		r.Reason = fmt.Sprintf("no verified patterns, hub coverage or fetch history for %s", host)
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Run crawl-place-hubs for %s to build initial fetch history", host),
			fmt.Sprintf("Seed %s in the pattern library if its hub layout is known", host),
		)
	case !verified && !coverage:
		r.Status = ReadinessDataLimited
		r.Reason = fmt.Sprintf("%s has fetch history but no verified patterns or hub coverage", host)
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Validate candidate hubs for %s to establish coverage", host))
	default:
		r.Status = ReadinessReady
		r.Reason = fmt.Sprintf("%s has enough signal for discovery", host)
	}

	// A timed-out probe caps the verdict at data-limited even when the
	// stored signals look healthy.
	if in.ProbeTimedOut && r.Status == ReadinessReady {
		r.Status = ReadinessDataLimited
		r.Reason = fmt.Sprintf("readiness probes for %s timed out", host)
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Re-run the capability probe for %s with a longer timeout", host))
	}

	if in.LatestDetermination != nil && in.LatestDetermination.Determination == models.DeterminationRateLimited {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("%s rate-limited a previous run; consider a slower crawl", host))
	}

	return r
}
