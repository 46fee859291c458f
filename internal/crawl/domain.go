// Package crawl contains the domain processor: the pipeline that turns a
// seed URL into validated hub records. It owns the cache-age policy, the
// readiness assessment and the run summary.
package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// Domain is a normalized crawl target. Immutable within a run.
type Domain struct {
	Host   string `json:"host"`
	Scheme string `json:"scheme"`
	Base   string `json:"base"`
}

// NormalizeDomain parses any URL-like input into a Domain. A bare host
// gets an https scheme. Fails on empty or unparseable input.
func NormalizeDomain(input string) (Domain, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Domain{}, fmt.Errorf("empty domain")
	}
	if !strings.Contains(input, "://") {
		input = "https://" + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return Domain{}, fmt.Errorf("invalid domain %q: %w", input, err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return Domain{}, fmt.Errorf("invalid domain %q", input)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return Domain{}, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	// Host stays port-free for matching; the base keeps the port so
	// fetches hit the right listener.
	base := scheme + "://" + host
	if port := parsed.Port(); port != "" {
		base += ":" + port
	}
	return Domain{Host: host, Scheme: scheme, Base: base}, nil
}

// CanonicalURL resolves a predicted URL (absolute or relative) against the
// domain and lowercases it for deduplication.
func (d Domain) CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty candidate URL")
	}

	var full string
	if strings.Contains(raw, "://") {
		full = raw
	} else if strings.HasPrefix(raw, "/") {
		full = d.Base + raw
	} else {
		full = d.Base + "/" + raw
	}

	parsed, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("invalid candidate URL %q: %w", raw, err)
	}
	parsed.Fragment = ""
	return strings.ToLower(parsed.String()), nil
}
