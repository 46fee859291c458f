// Package predict enumerates candidate hub URLs for a domain and a place
// or topic. Analyzers are pure functions of their inputs plus the static
// pattern library; the pipeline applies the scheme and deduplicates.
package predict

import "strings"

// PatternKind says what a URL template produces.
type PatternKind string

const (
	PatternPlace       PatternKind = "place"
	PatternTopic       PatternKind = "topic"
	PatternCombination PatternKind = "combination"
)

// Pattern is one URL template. Templates use {slug} for the place or
// topic slug, {code} for the place code, and {place}/{topic} in
// combination templates.
type Pattern struct {
	Template string
	Kind     PatternKind
	Score    float64
	Verified bool
}

// LibraryEntry is the per-domain pattern set.
type LibraryEntry struct {
	Host     string
	Patterns []Pattern
}

// VerifiedCount returns how many verified patterns the entry carries.
func (e *LibraryEntry) VerifiedCount() int {
	n := 0
	for _, p := range e.Patterns {
		if p.Verified {
			n++
		}
	}
	return n
}

// Library is the domain-specific pattern library. Static at build time.
type Library struct {
	entries map[string]LibraryEntry
}

// NewLibrary creates the built-in library.
func NewLibrary() *Library {
	lib := &Library{entries: make(map[string]LibraryEntry)}
	for _, e := range builtinEntries {
		lib.entries[e.Host] = e
	}
	return lib
}

// Lookup finds the entry whose host matches the given host or one of its
// parent domains. Returns nil when the domain is unknown to the library.
func (l *Library) Lookup(host string) *LibraryEntry {
	host = strings.ToLower(host)
	for h := host; h != ""; {
		if e, ok := l.entries[h]; ok {
			return &e
		}
		i := strings.Index(h, ".")
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return nil
}

// genericPatterns apply to every domain, verified ones from the library
// rank above them.
var genericPatterns = []Pattern{
	{Template: "/news/{slug}", Kind: PatternPlace, Score: 0.6},
	{Template: "/world/{slug}", Kind: PatternPlace, Score: 0.55},
	{Template: "/{slug}", Kind: PatternPlace, Score: 0.4},
	{Template: "/tag/{slug}", Kind: PatternTopic, Score: 0.6},
	{Template: "/topics/{slug}", Kind: PatternTopic, Score: 0.55},
	{Template: "/{slug}", Kind: PatternTopic, Score: 0.35},
	{Template: "/{place}/{topic}", Kind: PatternCombination, Score: 0.5},
	{Template: "/news/{place}/{topic}", Kind: PatternCombination, Score: 0.45},
}

// builtinEntries hold per-domain templates known to produce hubs.
var builtinEntries = []LibraryEntry{
	{
		Host: "bbc.co.uk",
		Patterns: []Pattern{
			{Template: "/news/world-{slug}", Kind: PatternPlace, Score: 0.9, Verified: true},
			{Template: "/news/topics/{slug}", Kind: PatternTopic, Score: 0.85, Verified: true},
		},
	},
	{
		Host: "theguardian.com",
		Patterns: []Pattern{
			{Template: "/world/{slug}", Kind: PatternPlace, Score: 0.9, Verified: true},
			{Template: "/{slug}", Kind: PatternTopic, Score: 0.8, Verified: true},
			{Template: "/world/{place}/{topic}", Kind: PatternCombination, Score: 0.7, Verified: true},
		},
	},
	{
		Host: "reuters.com",
		Patterns: []Pattern{
			{Template: "/world/{slug}", Kind: PatternPlace, Score: 0.85, Verified: true},
			{Template: "/markets/{slug}", Kind: PatternTopic, Score: 0.7, Verified: true},
		},
	},
}

// Summary describes the library's knowledge of one domain, used in
// readiness reports.
type Summary struct {
	Host             string `json:"host"`
	Known            bool   `json:"known"`
	PatternCount     int    `json:"pattern_count"`
	VerifiedPatterns int    `json:"verified_patterns"`
}

// Summarize builds the readiness summary for a host.
func (l *Library) Summarize(host string) Summary {
	s := Summary{Host: strings.ToLower(host)}
	if e := l.Lookup(host); e != nil {
		s.Known = true
		s.PatternCount = len(e.Patterns)
		s.VerifiedPatterns = e.VerifiedCount()
	}
	return s
}
