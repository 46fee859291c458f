// Package probe detects what a news domain supports before a crawl is
// chosen: robots.txt policy, sitemap hints and a shallow sample of the
// homepage navigation. The result drives operation selection instead of
// guessing from the URL alone.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/temoto/robotstxt"

	"github.com/newsmap/hubcrawl/internal/fetch"
)

// Operation names the detector can suggest.
const (
	SuggestCrawlArticles = "crawlArticles"
	SuggestCountryHubs   = "ensureCountryHubs"
	SuggestTopicHubs     = "discoverTopicHubs"
	SuggestPlaceHubs     = "discoverPlaceHubs"
)

// Capabilities is the probe outcome for one domain.
type Capabilities struct {
	Host               string        `json:"host"`
	RobotsFetched      bool          `json:"robots_fetched"`
	CrawlAllowed       bool          `json:"crawl_allowed"`
	CrawlDelay         time.Duration `json:"crawl_delay"`
	Sitemaps           []string      `json:"sitemaps,omitempty"`
	SectionPaths       []string      `json:"section_paths,omitempty"`
	TopicSections      int           `json:"topic_sections"`
	WorldSections      int           `json:"world_sections"`
	SuggestedOperation string        `json:"suggested_operation"`
	ProbeTimedOut      bool          `json:"probe_timed_out"`
}

// Detector probes a domain. One instance is safe for concurrent use.
type Detector struct {
	client    *fetch.Client
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDetector creates a detector sharing the job's fetch client for the
// robots request so it counts against the politeness delay.
func NewDetector(client *fetch.Client, userAgent string, timeout time.Duration, logger *slog.Logger) *Detector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{client: client, userAgent: userAgent, timeout: timeout, logger: logger}
}

// Detect probes base (scheme + host). Robots failures degrade to
// crawl-allowed with no delay; only a malformed base errors.
func (d *Detector) Detect(ctx context.Context, base string) (*Capabilities, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid probe base %q: %w", base, err)
	}
	if parsed.Host == "" || parsed.Scheme == "" {
		return nil, fmt.Errorf("invalid probe base %q", base)
	}

	caps := &Capabilities{Host: strings.ToLower(parsed.Hostname()), CrawlAllowed: true}

	d.probeRobots(ctx, parsed, caps)
	if caps.CrawlAllowed {
		d.sampleNavigation(parsed, caps)
	}
	caps.SuggestedOperation = suggest(caps)
	return caps, nil
}

func (d *Detector) probeRobots(ctx context.Context, base *url.URL, caps *Capabilities) {
	robotsURL := base.Scheme + "://" + base.Host + "/robots.txt"
	result, err := d.client.Fetch(ctx, robotsURL, fetch.Options{
		Timeout:   d.timeout,
		UserAgent: d.userAgent,
	})
	if err != nil {
		return
	}
	if !result.OK {
		caps.ProbeTimedOut = result.HTTPStatus == 408
		d.logger.Debug("robots probe failed", "host", caps.Host, "status", result.HTTPStatus)
		return
	}

	data, err := robotstxt.FromStatusAndBytes(result.HTTPStatus, []byte(result.Body))
	if err != nil {
		d.logger.Debug("robots parse failed", "host", caps.Host, "error", err)
		return
	}

	caps.RobotsFetched = result.HTTPStatus == 200
	caps.Sitemaps = data.Sitemaps

	group := data.FindGroup(d.userAgent)
	if group != nil {
		caps.CrawlAllowed = group.Test("/")
		caps.CrawlDelay = group.CrawlDelay
	}
}

// sampleNavigation visits the homepage once and collects distinct short
// structural paths from its anchors.
func (d *Detector) sampleNavigation(base *url.URL, caps *Capabilities) {
	var mu sync.Mutex
	paths := make(map[string]bool)

	c := colly.NewCollector(
		colly.AllowedDomains(base.Hostname(), "www."+base.Hostname()),
		colly.MaxDepth(1),
		colly.UserAgent(d.userAgent),
	)
	c.SetRequestTimeout(d.timeout)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		parsed, err := url.Parse(link)
		if err != nil || parsed.Hostname() != base.Hostname() && parsed.Hostname() != "www."+base.Hostname() {
			return
		}
		path := strings.Trim(parsed.Path, "/")
		if path == "" || strings.Count(path, "/") > 1 || strings.Contains(path, "-") {
			return
		}
		mu.Lock()
		paths["/"+path] = true
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		d.logger.Debug("homepage probe failed", "host", caps.Host, "error", err)
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			mu.Lock()
			caps.ProbeTimedOut = true
			mu.Unlock()
		}
	})

	c.Visit(base.Scheme + "://" + base.Host + "/")
	c.Wait()

	for p := range paths {
		caps.SectionPaths = append(caps.SectionPaths, p)
		switch {
		case strings.HasPrefix(p, "/tag/"), strings.HasPrefix(p, "/topics/"), strings.HasPrefix(p, "/topic/"):
			caps.TopicSections++
		case strings.HasPrefix(p, "/world"), strings.HasPrefix(p, "/news/world"):
			caps.WorldSections++
		}
	}
	sort.Strings(caps.SectionPaths)
}

// suggest picks an operation from the probe evidence. World sections hint
// at place hubs, tag sections at topic hubs; a plain article crawl is the
// fallback.
func suggest(caps *Capabilities) string {
	switch {
	case !caps.CrawlAllowed:
		return ""
	case caps.WorldSections > 0:
		return SuggestCountryHubs
	case caps.TopicSections > 0:
		return SuggestTopicHubs
	case len(caps.SectionPaths) >= 5:
		return SuggestPlaceHubs
	default:
		return SuggestCrawlArticles
	}
}
