package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/newsmap/hubcrawl/internal/crawl"
	"github.com/newsmap/hubcrawl/internal/models"
)

// Article crawl defaults.
const (
	defaultArticleMaxPages = 25
	defaultArticleMaxDepth = 2
	maxReportedArticles    = 200
)

var articleURLPattern = regexp.MustCompile(`(/\d{4}/\d{2}/|/article|/story|/news/.+-|-\d{5,})`)

// ArticleCrawl is the result of one crawlArticles run. Fetch history for
// every visited page lands in the fetch store; this summary reports what
// the crawl saw.
type ArticleCrawl struct {
	Domain        string   `json:"domain"`
	PagesVisited  int      `json:"pages_visited"`
	ArticlesFound int      `json:"articles_found"`
	ArticleURLs   []string `json:"article_urls,omitempty"`
	Errors        int      `json:"errors"`
	Aborted       bool     `json:"aborted"`
	DurationMs    int64    `json:"duration_ms"`
}

// articleVisit tracks one in-flight page so the fetch row can be written
// with request timing and the extracted title.
type articleVisit struct {
	startedAt time.Time
	title     string
}

// crawlArticles walks a site breadth-first from the start URL, recording a
// fetch row per page. It exists to build the fetch history the readiness
// assessment needs before hub discovery can run.
func (f *Facade) crawlArticles(ctx context.Context, req opRequest) (result any, err error) {
	defer capturePanic(&err)

	domain, err := crawl.NormalizeDomain(req.startURL)
	if err != nil {
		return nil, err
	}

	maxPages := defaultArticleMaxPages
	maxDepth := defaultArticleMaxDepth
	rateLimit := f.rateLimit()
	for key, raw := range req.overrides {
		switch key {
		case "maxPages":
			if maxPages, err = toPositiveInt(raw); err != nil {
				return nil, fmt.Errorf("override maxPages: %w", err)
			}
		case "maxDepth":
			if maxDepth, err = toPositiveInt(raw); err != nil {
				return nil, fmt.Errorf("override maxDepth: %w", err)
			}
		case "rateLimitMs":
			n, perr := toPositiveInt(raw)
			if perr != nil {
				return nil, fmt.Errorf("override rateLimitMs: %w", perr)
			}
			rateLimit = time.Duration(n) * time.Millisecond
		case "quiet":
			// Consumed by the facade.
		default:
			return nil, fmt.Errorf("unknown override %q", key)
		}
	}

	c := colly.NewCollector(
		colly.AllowedDomains(domain.Host, "www."+domain.Host),
		colly.MaxDepth(maxDepth),
		colly.UserAgent(f.userAgent()),
	)
	c.SetRequestTimeout(f.fetchTimeout())
	if rateLimit > 0 {
		_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: rateLimit, Parallelism: 1})
	}

	var (
		mu       sync.Mutex
		visits   = make(map[string]*articleVisit)
		articles = make(map[string]bool)
		summary  = ArticleCrawl{Domain: domain.Host}
	)
	started := time.Now()

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || req.control.Aborted() {
			mu.Lock()
			summary.Aborted = true
			mu.Unlock()
			r.Abort()
			return
		}
		if werr := req.control.WaitIfPaused(ctx); werr != nil {
			r.Abort()
			return
		}

		mu.Lock()
		if summary.PagesVisited >= maxPages {
			mu.Unlock()
			r.Abort()
			return
		}
		summary.PagesVisited++
		visits[r.URL.String()] = &articleVisit{startedAt: time.Now().UTC()}
		mu.Unlock()
	})

	c.OnHTML("title", func(e *colly.HTMLElement) {
		mu.Lock()
		if v := visits[e.Request.URL.String()]; v != nil && v.title == "" {
			v.title = strings.TrimSpace(e.Text)
		}
		mu.Unlock()
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		if articleURLPattern.MatchString(link) {
			mu.Lock()
			if !articles[link] {
				articles[link] = true
				summary.ArticlesFound++
				if len(summary.ArticleURLs) < maxReportedArticles {
					summary.ArticleURLs = append(summary.ArticleURLs, link)
				}
			}
			mu.Unlock()
		}
		// Visit errors (already seen, depth, off-domain) are routine here.
		_ = e.Request.Visit(link)
	})

	c.OnScraped(func(r *colly.Response) {
		f.recordArticleFetch(ctx, req, domain.Host, r.Request.URL.String(), r, nil, visitFor(&mu, visits, r.Request.URL.String()))
	})

	c.OnError(func(r *colly.Response, cerr error) {
		mu.Lock()
		summary.Errors++
		mu.Unlock()
		f.recordArticleFetch(ctx, req, domain.Host, r.Request.URL.String(), r, cerr, visitFor(&mu, visits, r.Request.URL.String()))
	})

	if verr := c.Visit(domain.Base + "/"); verr != nil {
		return nil, fmt.Errorf("failed to start article crawl of %s: %w", domain.Host, verr)
	}

	mu.Lock()
	summary.Aborted = summary.Aborted || req.control.Aborted()
	summary.DurationMs = time.Since(started).Milliseconds()
	out := summary
	mu.Unlock()
	return &out, nil
}

func visitFor(mu *sync.Mutex, visits map[string]*articleVisit, url string) articleVisit {
	mu.Lock()
	defer mu.Unlock()
	if v := visits[url]; v != nil {
		return *v
	}
	return articleVisit{startedAt: time.Now().UTC()}
}

// recordArticleFetch writes the fetch row and telemetry for one visited
// page. Failures are logged, never fatal to the crawl.
func (f *Facade) recordArticleFetch(ctx context.Context, req opRequest, host, url string, r *colly.Response, cause error, visit articleVisit) {
	now := time.Now().UTC()
	status := r.StatusCode
	if cause != nil && status == 0 {
		status = http.StatusInternalServerError
		if strings.Contains(cause.Error(), "context deadline exceeded") {
			status = http.StatusRequestTimeout
		}
	}

	row := &models.FetchRow{
		URL:              url,
		Domain:           host,
		HTTPStatus:       status,
		HTTPSuccess:      cause == nil && status >= 200 && status < 300,
		Title:            visit.title,
		RequestMethod:    http.MethodGet,
		RequestStartedAt: visit.startedAt,
		FetchedAt:        now,
		BytesDownloaded:  int64(len(r.Body)),
		ContentType:      r.Headers.Get("Content-Type"),
		TotalMs:          now.Sub(visit.startedAt).Milliseconds(),
	}
	if err := f.repos.Fetch.Record(ctx, row, models.FetchTags{Stage: "GET"}); err != nil {
		f.logger.Warn("failed to record article fetch", "url", url, "error", err)
	}

	payload, _ := json.Marshal(map[string]any{"url": url, "status": status, "ms": row.TotalMs})
	f.sink.Emit(&models.TaskEvent{
		TaskType:  "operation",
		TaskID:    req.taskID,
		EventType: "page-fetched",
		Category:  models.EventTelemetry,
		DataJSON:  string(payload),
	})
}
