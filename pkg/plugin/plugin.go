// Package plugin defines the public types and interfaces for goscrape.
// External tools can import this package to supply custom fetchers or
// result writers without forking the project.
package plugin

import (
	"fmt"
	"time"
)

// ---------- Core Data Types ----------

// Request describes a single scrape operation. Immutable once constructed.
type Request struct {
	// URL is the absolute http(s) URL to scrape.
	URL string

	// Selectors overrides the default field selectors. When nil, the
	// defaults (title/p/a) apply. A non-nil config is used verbatim:
	// fields left empty are NOT back-filled from the defaults.
	Selectors *SelectorConfig

	// Proxy overrides the fetcher's default proxy for this request.
	Proxy string

	// DownloadImages enables fetching of every <img src> on the page.
	DownloadImages bool
}

// SelectorConfig maps result fields to CSS selector expressions.
type SelectorConfig struct {
	Title      string
	Paragraphs string
	Links      string

	// Extra holds selector keys the extractor does not recognize.
	// They are preserved for callers but never evaluated.
	Extra map[string]string
}

// DefaultSelectors returns the selector set used when a request carries
// no selector configuration at all.
func DefaultSelectors() *SelectorConfig {
	return &SelectorConfig{
		Title:      "title",
		Paragraphs: "p",
		Links:      "a",
	}
}

// RawPage is the outcome of a successful page fetch.
type RawPage struct {
	URL           string
	Body          []byte
	ContentType   string
	StatusCode    int
	FetchedAt     time.Time
	FetchDuration time.Duration
}

// Link is a hyperlink extracted from a page. Href is the raw attribute
// value, not resolved against the page URL.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Image records a downloaded image: where it came from and where it landed.
type Image struct {
	OriginalURL string `json:"original_url"`
	SavedPath   string `json:"saved_path"`
}

// Result is the success record for a single scraped URL.
type Result struct {
	URL        string    `json:"url"`
	FetchedAt  time.Time `json:"timestamp"`
	Title      string    `json:"title"`
	Paragraphs []string  `json:"paragraphs"`
	Links      []Link    `json:"links"`
	Images     []Image   `json:"images,omitempty"`
}

// ---------- Errors ----------

// ErrorKind classifies a scrape failure.
type ErrorKind string

const (
	// ConnectionError covers transport failures and non-2xx responses.
	ConnectionError ErrorKind = "connection_error"

	// UnexpectedError covers everything else, including parse failures.
	UnexpectedError ErrorKind = "unexpected_error"

	// AssetFetchError marks a per-image failure. It never escalates past
	// the asset downloader and never fails the owning page scrape.
	AssetFetchError ErrorKind = "asset_fetch_error"
)

// ScrapeError is the failure record for a single URL or asset.
type ScrapeError struct {
	Kind   ErrorKind
	URL    string
	Detail string
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.URL, e.Detail)
}

// NewScrapeError builds a classified failure for the given URL.
func NewScrapeError(kind ErrorKind, url, format string, args ...interface{}) *ScrapeError {
	return &ScrapeError{
		Kind:   kind,
		URL:    url,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ---------- Event Types ----------

// Event is a real-time notification emitted while scraping. Per-URL
// failures travel here and in logs only; the batch API drops them.
type Event struct {
	Type    EventType
	URL     string
	Result  *Result
	Err     error
	Stats   *Stats
	Message string
}

// EventType identifies the kind of event.
type EventType int

const (
	EventScrapeStarted EventType = iota
	EventPageDone
	EventPageError
	EventImageSaved
	EventBatchFinished
)

// Stats holds running batch statistics.
type Stats struct {
	PagesScraped int           `json:"pages_scraped"`
	PagesErrored int           `json:"pages_errored"`
	ImagesSaved  int           `json:"images_saved"`
	Elapsed      time.Duration `json:"elapsed"`
}

// ---------- Plugin Interfaces ----------

// Fetcher defines how pages are retrieved.
type Fetcher interface {
	// Name returns a human-readable identifier for this fetcher.
	Name() string

	// Fetch retrieves the page at the given URL. A non-empty proxy
	// overrides the fetcher's default for this call. Errors are
	// *ScrapeError values classified as ConnectionError or
	// UnexpectedError.
	Fetch(url, proxy string) (*RawPage, error)

	// Close releases any resources held by the fetcher.
	Close() error
}

// ResultWriter defines how scrape results are persisted.
type ResultWriter interface {
	// Name returns a human-readable identifier (e.g. "json", "csv").
	Name() string

	// Write persists the given success records.
	Write(results []*Result) error
}
