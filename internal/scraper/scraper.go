// Package scraper composes the fetcher, extractor and asset downloader
// into single-URL and batch scrape operations.
package scraper

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/derinwebs/goscrape/internal/assets"
	"github.com/derinwebs/goscrape/internal/config"
	"github.com/derinwebs/goscrape/internal/extractor"
	"github.com/derinwebs/goscrape/internal/fetcher"
	"github.com/derinwebs/goscrape/internal/logger"
	"github.com/derinwebs/goscrape/pkg/plugin"
)

// Scraper is the core engine orchestrating fetch, extract and download.
type Scraper struct {
	cfg        *config.Config
	fetch      plugin.Fetcher
	extract    *extractor.Extractor
	downloader *assets.Downloader
	log        *logger.Logger
	events     chan plugin.Event

	stats     plugin.Stats
	statsMu   sync.Mutex
	startTime time.Time

	stopped bool
	stopMu  sync.Mutex
}

// New creates a scraper with the default HTTP fetcher built from cfg.
func New(cfg *config.Config, log *logger.Logger) (*Scraper, error) {
	httpFetch, err := fetcher.New(fetcher.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Proxy:     cfg.Scraper.Proxy,
		Delay:     cfg.RateLimit(),
		Timeout:   cfg.Timeout(),
		Retry: fetcher.RetryPolicy{
			MaxAttempts:       cfg.Scraper.Retry.MaxAttempts,
			InitialDelay:      time.Duration(cfg.Scraper.Retry.InitialDelayMs) * time.Millisecond,
			BackoffMultiplier: cfg.Scraper.Retry.BackoffMultiplier,
		},
	})
	if err != nil {
		return nil, err
	}

	downloader := assets.New(cfg.Scraper.UserAgent, cfg.Timeout(), log.With("component", "assets"))
	return NewWithDeps(cfg, log, httpFetch, downloader), nil
}

// NewWithDeps creates a scraper with injected dependencies.
func NewWithDeps(cfg *config.Config, log *logger.Logger, fetch plugin.Fetcher, downloader *assets.Downloader) *Scraper {
	return &Scraper{
		cfg:        cfg,
		fetch:      fetch,
		extract:    extractor.New(cfg.Scraper.MaxParagraphs, cfg.Scraper.MaxLinks),
		downloader: downloader,
		log:        log,
		events:     make(chan plugin.Event, 256),
		startTime:  time.Now(),
	}
}

// Events returns the event channel for console or other consumers.
// The channel closes when the scraper is closed.
func (s *Scraper) Events() <-chan plugin.Event {
	return s.events
}

// ScrapeOne performs a single scrape. The returned error is always a
// *plugin.ScrapeError; callers must not pass unvalidated URLs here.
func (s *Scraper) ScrapeOne(req plugin.Request) (*plugin.Result, error) {
	s.emit(plugin.Event{Type: plugin.EventScrapeStarted, URL: req.URL})

	page, err := s.fetch.Fetch(req.URL, req.Proxy)
	if err != nil {
		var scrapeErr *plugin.ScrapeError
		if !errors.As(err, &scrapeErr) {
			scrapeErr = plugin.NewScrapeError(plugin.UnexpectedError, req.URL, "%v", err)
		}
		s.recordFailure(req.URL, scrapeErr)
		return nil, scrapeErr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		scrapeErr := plugin.NewScrapeError(plugin.UnexpectedError, req.URL, "parse page: %v", err)
		s.recordFailure(req.URL, scrapeErr)
		return nil, scrapeErr
	}

	// Default selectors apply only when the request carries no selector
	// configuration at all; a partial config is used verbatim.
	sel := req.Selectors
	if sel == nil {
		sel = plugin.DefaultSelectors()
	}
	content := s.extract.Extract(doc, sel)

	result := &plugin.Result{
		URL:        req.URL,
		FetchedAt:  time.Now(),
		Title:      content.Title,
		Paragraphs: content.Paragraphs,
		Links:      content.Links,
	}

	if req.DownloadImages && s.downloader != nil {
		srcs := extractor.ImageSources(doc)
		result.Images = s.downloader.DownloadAll(req.URL, srcs, s.cfg.Images.Dir)
		for _, img := range result.Images {
			s.emit(plugin.Event{Type: plugin.EventImageSaved, URL: img.OriginalURL, Message: img.SavedPath})
		}
	}

	s.statsMu.Lock()
	s.stats.PagesScraped++
	s.stats.ImagesSaved += len(result.Images)
	s.stats.Elapsed = time.Since(s.startTime)
	s.statsMu.Unlock()

	s.emit(plugin.Event{Type: plugin.EventPageDone, URL: req.URL, Result: result, Stats: s.Stats()})
	return result, nil
}

// ScrapeMany fans requests out over a fixed-size worker pool and returns
// the successes in submission order. Failures are logged and emitted as
// events but deliberately dropped from the returned slice.
func (s *Scraper) ScrapeMany(reqs []plugin.Request) []*plugin.Result {
	slots := make([]*plugin.Result, len(reqs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.Scraper.Concurrency)

	for i, req := range reqs {
		if s.isStopped() {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, req plugin.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.ScrapeOne(req)
			if err != nil {
				// Observed via logging and events only; the batch
				// result set silently excludes this URL.
				return
			}
			slots[idx] = result
		}(i, req)
	}

	wg.Wait()

	results := make([]*plugin.Result, 0, len(reqs))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}

	s.emit(plugin.Event{Type: plugin.EventBatchFinished, Stats: s.Stats()})
	return results
}

// Stop prevents further batch dispatch. In-flight workers finish.
func (s *Scraper) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	s.stopped = true
}

func (s *Scraper) isStopped() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	return s.stopped
}

// Stats returns a copy of the current statistics.
func (s *Scraper) Stats() *plugin.Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	statsCopy := s.stats
	statsCopy.Elapsed = time.Since(s.startTime)
	return &statsCopy
}

// Close releases the fetcher and ends the event stream.
func (s *Scraper) Close() error {
	err := s.fetch.Close()
	close(s.events)
	return err
}

func (s *Scraper) recordFailure(url string, scrapeErr *plugin.ScrapeError) {
	s.statsMu.Lock()
	s.stats.PagesErrored++
	s.statsMu.Unlock()

	s.log.Error("scrape failed", "url", url, "kind", string(scrapeErr.Kind), "detail", scrapeErr.Detail)
	s.emit(plugin.Event{Type: plugin.EventPageError, URL: url, Err: scrapeErr, Message: scrapeErr.Detail})
}

// emit sends an event without blocking; slow consumers drop events.
func (s *Scraper) emit(event plugin.Event) {
	select {
	case s.events <- event:
	default:
	}
}
