// Package fetcher retrieves single pages over HTTP(S) with a browser
// identity header, optional proxy and a fixed pre-request delay.
package fetcher

import (
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/derinwebs/goscrape/pkg/plugin"
)

// HTTPFetcher uses Colly for fast, efficient HTTP-only page fetching.
type HTTPFetcher struct {
	collector *colly.Collector
	delay     time.Duration
	timeout   time.Duration
	retry     RetryPolicy
}

// Config holds configuration for the HTTP fetcher.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Proxy, when set, routes both http and https traffic through the
	// given endpoint (http://host:port or socks5://host:port).
	Proxy string

	// Delay is the minimum wait applied before each request.
	Delay time.Duration

	// Timeout bounds a single request. Zero means no timeout: a hung
	// request blocks its worker slot, which is the documented default.
	Timeout time.Duration

	// Retry controls transport-failure retries. A zero value means a
	// single attempt.
	Retry RetryPolicy
}

// RetryPolicy defines how transport failures are retried.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
}

// New creates a Colly-based HTTP fetcher.
func New(cfg Config) (*HTTPFetcher, error) {
	c := colly.NewCollector()

	// robots.txt handling is out of scope for this tool.
	c.IgnoreRobotsTxt = true

	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	// Zero disables the client timeout entirely.
	c.SetRequestTimeout(cfg.Timeout)

	if cfg.Proxy != "" {
		if err := c.SetProxy(cfg.Proxy); err != nil {
			return nil, err
		}
	}

	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	return &HTTPFetcher{
		collector: c,
		delay:     cfg.Delay,
		timeout:   cfg.Timeout,
		retry:     retry,
	}, nil
}

func (f *HTTPFetcher) Name() string { return "http" }

// Fetch retrieves the page at targetURL. A non-empty proxy overrides the
// fetcher's default for this call. Transport failures and non-2xx
// responses come back as ConnectionError; anything else as UnexpectedError.
func (f *HTTPFetcher) Fetch(targetURL, proxy string) (*plugin.RawPage, error) {
	var page *plugin.RawPage
	var err error

	backoff := f.retry.InitialDelay
	for attempt := 1; ; attempt++ {
		page, err = f.fetchOnce(targetURL, proxy)
		if err == nil || attempt >= f.retry.MaxAttempts {
			return page, err
		}
		time.Sleep(backoff)
		backoff = time.Duration(float64(backoff) * f.retry.BackoffMultiplier)
	}
}

func (f *HTTPFetcher) fetchOnce(targetURL, proxy string) (*plugin.RawPage, error) {
	// Rate limiting. The delay is applied per invocation rather than
	// coordinated across concurrent fetches, so overall request rate
	// scales with pool width. Intentional; do not globalize.
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	start := time.Now()
	page := &plugin.RawPage{URL: targetURL, FetchedAt: start}

	// Clone the collector for this individual fetch so we get clean state.
	c := f.collector.Clone()

	// A per-request proxy override gets a dedicated collector. Clones
	// share the HTTP backend, so setting a proxy on one would leak into
	// every other in-flight and subsequent fetch.
	if proxy != "" {
		pc := colly.NewCollector()
		pc.IgnoreRobotsTxt = true
		pc.UserAgent = f.collector.UserAgent
		pc.SetRequestTimeout(f.timeout)
		if err := pc.SetProxy(proxy); err != nil {
			return nil, plugin.NewScrapeError(plugin.UnexpectedError, targetURL, "proxy %q: %v", proxy, err)
		}
		c = pc
	}

	var fetchErr error
	responded := false

	c.OnResponse(func(r *colly.Response) {
		responded = true
		page.StatusCode = r.StatusCode
		page.Body = r.Body
		page.ContentType = r.Headers.Get("Content-Type")
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			page.StatusCode = r.StatusCode
		}
	})

	visitErr := c.Visit(targetURL)
	c.Wait()
	page.FetchDuration = time.Since(start)

	switch {
	case fetchErr != nil:
		return nil, plugin.NewScrapeError(plugin.ConnectionError, targetURL, "request failed: %v", fetchErr)
	case visitErr != nil:
		return nil, plugin.NewScrapeError(plugin.ConnectionError, targetURL, "request failed: %v", visitErr)
	case !responded:
		return nil, plugin.NewScrapeError(plugin.UnexpectedError, targetURL, "no response received")
	case page.StatusCode < 200 || page.StatusCode >= 300:
		return nil, plugin.NewScrapeError(plugin.ConnectionError, targetURL, "HTTP status %d", page.StatusCode)
	}

	return page, nil
}

func (f *HTTPFetcher) Close() error {
	return nil
}
