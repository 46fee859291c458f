// Package fetch performs single HTTP requests with timeout, redirect and
// byte accounting. Network failures are returned inside the Result, not as
// errors; an error return means the arguments were malformed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Default request settings.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "hubcrawl/1.0 (+https://github.com/newsmap/hubcrawl)"
)

// Metrics accounts for one request.
type Metrics struct {
	RequestStartedAt time.Time `json:"request_started_at"`
	FetchedAt        time.Time `json:"fetched_at"`
	BytesDownloaded  int64     `json:"bytes_downloaded"`
	ContentType      string    `json:"content_type,omitempty"`
	ContentLength    int64     `json:"content_length,omitempty"`
	TotalMs          int64     `json:"total_ms"`
	DownloadMs       int64     `json:"download_ms"`
	RedirectCount    int       `json:"redirect_count"`
}

// Result is the outcome of one fetch. When OK is false, HTTPStatus carries
// 408 for a timeout and 500 for any other transport failure, and Error
// holds the cause.
type Result struct {
	OK         bool
	HTTPStatus int
	FinalURL   string
	Body       string
	Headers    http.Header
	Error      string
	Metrics    Metrics
}

// Options configure one request. Zero values fall back to GET,
// DefaultTimeout and the client's user agent.
type Options struct {
	Method    string
	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string
}

// Client is a polite bounded fetcher. One client is owned by one job; the
// per-host delay and the download budget are shared by that job's workers.
type Client struct {
	userAgent    string
	rateLimit    time.Duration
	maxDownloads int

	mu          sync.Mutex
	lastRequest map[string]time.Time
	downloads   int
}

// NewClient creates a fetch client. rateLimit is the minimum delay between
// requests to the same host; maxDownloads caps total fetches for the run
// (0 means unlimited).
func NewClient(userAgent string, rateLimit time.Duration, maxDownloads int) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		userAgent:    userAgent,
		rateLimit:    rateLimit,
		maxDownloads: maxDownloads,
		lastRequest:  make(map[string]time.Time),
	}
}

// Downloads returns how many fetches this client has performed.
func (c *Client) Downloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloads
}

// BudgetExhausted reports whether the global download cap has been reached.
// Checked by the pipeline between candidates.
func (c *Client) BudgetExhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxDownloads > 0 && c.downloads >= c.maxDownloads
}

// Fetch performs one request. The only error condition is a malformed URL
// or method; everything the network can do wrong comes back in the Result.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid fetch URL: %q", rawURL)
	}

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		return nil, fmt.Errorf("unsupported fetch method: %q", method)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c.waitPolite(ctx, parsed.Hostname())

	c.mu.Lock()
	c.downloads++
	c.mu.Unlock()

	started := time.Now().UTC()
	result := &Result{FinalURL: rawURL, Metrics: Metrics{RequestStartedAt: started}}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch request: %w", err)
	}
	req.Header.Set("User-Agent", c.pickUserAgent(opts))
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	redirects := 0
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirects = len(via)
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return c.failedResult(result, started, err), nil
	}
	defer resp.Body.Close()

	downloadStarted := time.Now()
	var body []byte
	if method != http.MethodHead {
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return c.failedResult(result, started, err), nil
		}
	}

	finished := time.Now().UTC()
	result.OK = true
	result.HTTPStatus = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.Body = string(body)
	result.Headers = resp.Header
	result.Metrics.FetchedAt = finished
	result.Metrics.BytesDownloaded = int64(len(body))
	result.Metrics.ContentType = resp.Header.Get("Content-Type")
	result.Metrics.ContentLength = resp.ContentLength
	result.Metrics.TotalMs = finished.Sub(started).Milliseconds()
	result.Metrics.DownloadMs = finished.Sub(downloadStarted).Milliseconds()
	result.Metrics.RedirectCount = redirects
	return result, nil
}

// waitPolite blocks until the per-host delay since the previous request to
// the same host has elapsed. Returns early if the context is cancelled;
// the subsequent request fails on the same context.
func (c *Client) waitPolite(ctx context.Context, host string) {
	if c.rateLimit <= 0 {
		return
	}

	c.mu.Lock()
	last, seen := c.lastRequest[host]
	now := time.Now()
	next := now
	if seen && last.Add(c.rateLimit).After(now) {
		next = last.Add(c.rateLimit)
	}
	c.lastRequest[host] = next
	c.mu.Unlock()

	if wait := time.Until(next); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}

func (c *Client) pickUserAgent(opts Options) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	return c.userAgent
}

func (c *Client) failedResult(result *Result, started time.Time, cause error) *Result {
	finished := time.Now().UTC()
	result.OK = false
	result.Body = ""
	result.Error = cause.Error()
	result.Metrics.FetchedAt = finished
	result.Metrics.TotalMs = finished.Sub(started).Milliseconds()
	if errors.Is(cause, context.DeadlineExceeded) {
		result.HTTPStatus = http.StatusRequestTimeout
	} else {
		result.HTTPStatus = http.StatusInternalServerError
	}
	return result
}
