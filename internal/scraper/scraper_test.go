package scraper

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/derinwebs/goscrape/internal/assets"
	"github.com/derinwebs/goscrape/internal/config"
	"github.com/derinwebs/goscrape/internal/logger"
	"github.com/derinwebs/goscrape/pkg/plugin"
)

// stubFetcher serves canned pages and records how many fetches are in
// flight simultaneously.
type stubFetcher struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int

	pages map[string]string
	fail  map[string]bool
	delay time.Duration
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string]string),
		fail:  make(map[string]bool),
	}
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(url, _ string) (*plugin.RawPage, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.fail[url] {
		return nil, plugin.NewScrapeError(plugin.ConnectionError, url, "stub refused")
	}

	body := f.pages[url]
	if body == "" {
		body = "<html><head><title>stub</title></head><body><p>hello</p></body></html>"
	}
	return &plugin.RawPage{
		URL:         url,
		Body:        []byte(body),
		ContentType: "text/html",
		StatusCode:  http.StatusOK,
		FetchedAt:   time.Now(),
	}, nil
}

func (f *stubFetcher) Close() error { return nil }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scraper.RateLimitMs = 0
	return cfg
}

func testScraper(cfg *config.Config, fetch plugin.Fetcher) *Scraper {
	log := logger.NewWithWriter("error", io.Discard)
	return NewWithDeps(cfg, log, fetch, assets.New("", 0, log))
}

func TestScrapeOne_Success(t *testing.T) {
	fetch := newStubFetcher()
	fetch.pages["https://example.com/"] = `<html><head><title>Home</title></head>
		<body><p>alpha</p><p>beta</p><a href="/next">Next</a></body></html>`

	s := testScraper(testConfig(), fetch)
	defer s.Close()

	before := time.Now()
	result, err := s.ScrapeOne(plugin.Request{URL: "https://example.com/"})
	if err != nil {
		t.Fatalf("ScrapeOne failed: %v", err)
	}

	if result.Title != "Home" {
		t.Errorf("unexpected title: %q", result.Title)
	}
	if len(result.Paragraphs) != 2 || result.Paragraphs[1] != "beta" {
		t.Errorf("unexpected paragraphs: %v", result.Paragraphs)
	}
	if len(result.Links) != 1 || result.Links[0].Href != "/next" {
		t.Errorf("unexpected links: %+v", result.Links)
	}
	if result.FetchedAt.Before(before) {
		t.Error("FetchedAt must be set at extraction completion")
	}
	if result.Images != nil {
		t.Errorf("images must be absent when not requested, got %+v", result.Images)
	}
}

func TestScrapeOne_FetchFailureClassified(t *testing.T) {
	fetch := newStubFetcher()
	fetch.fail["https://down.example.com/"] = true

	s := testScraper(testConfig(), fetch)
	defer s.Close()

	_, err := s.ScrapeOne(plugin.Request{URL: "https://down.example.com/"})
	if err == nil {
		t.Fatal("expected error")
	}
	var scrapeErr *plugin.ScrapeError
	if !errors.As(err, &scrapeErr) {
		t.Fatalf("expected *plugin.ScrapeError, got %T", err)
	}
	if scrapeErr.Kind != plugin.ConnectionError {
		t.Errorf("expected ConnectionError, got %s", scrapeErr.Kind)
	}
}

func TestScrapeOne_PartialSelectorsUsedVerbatim(t *testing.T) {
	fetch := newStubFetcher()
	fetch.pages["https://example.com/"] = `<html><head><title>T</title></head>
		<body><p>para</p><a href="/x">x</a></body></html>`

	s := testScraper(testConfig(), fetch)
	defer s.Close()

	result, err := s.ScrapeOne(plugin.Request{
		URL:       "https://example.com/",
		Selectors: &plugin.SelectorConfig{Title: "title"},
	})
	if err != nil {
		t.Fatalf("ScrapeOne failed: %v", err)
	}
	if result.Title != "T" {
		t.Errorf("unexpected title: %q", result.Title)
	}
	if len(result.Paragraphs) != 0 || len(result.Links) != 0 {
		t.Errorf("partial selector config must not fall back to defaults: %+v", result)
	}
}

func TestScrapeOne_DownloadsImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img-bytes"))
	}))
	defer srv.Close()

	fetch := newStubFetcher()
	fetch.pages["https://example.com/"] = fmt.Sprintf(
		`<html><body><img src=%q><img src=""></body></html>`, srv.URL+"/pic.png")

	cfg := testConfig()
	cfg.Images.Dir = t.TempDir()
	s := testScraper(cfg, fetch)
	defer s.Close()

	result, err := s.ScrapeOne(plugin.Request{URL: "https://example.com/", DownloadImages: true})
	if err != nil {
		t.Fatalf("ScrapeOne failed: %v", err)
	}
	if len(result.Images) != 1 {
		t.Fatalf("expected 1 image (empty src skipped), got %d", len(result.Images))
	}
	if result.Images[0].OriginalURL != srv.URL+"/pic.png" {
		t.Errorf("unexpected image url: %s", result.Images[0].OriginalURL)
	}
}

func TestScrapeMany_DropsFailures(t *testing.T) {
	fetch := newStubFetcher()
	var reqs []plugin.Request
	for i := 0; i < 10; i++ {
		url := fmt.Sprintf("https://example.com/page/%d", i)
		if i%3 == 0 {
			fetch.fail[url] = true
		}
		reqs = append(reqs, plugin.Request{URL: url})
	}

	s := testScraper(testConfig(), fetch)
	defer s.Close()

	results := s.ScrapeMany(reqs)

	// Pages 0, 3, 6, 9 fail: 6 successes remain.
	if len(results) != 6 {
		t.Fatalf("expected 6 successes, got %d", len(results))
	}
	// Submission order with failed slots skipped.
	want := []string{
		"https://example.com/page/1",
		"https://example.com/page/2",
		"https://example.com/page/4",
		"https://example.com/page/5",
		"https://example.com/page/7",
		"https://example.com/page/8",
	}
	for i, r := range results {
		if r.URL != want[i] {
			t.Errorf("result %d: expected %s, got %s", i, want[i], r.URL)
		}
	}

	stats := s.Stats()
	if stats.PagesScraped != 6 || stats.PagesErrored != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestScrapeMany_ConcurrencyCap(t *testing.T) {
	fetch := newStubFetcher()
	fetch.delay = 30 * time.Millisecond

	cfg := testConfig()
	cfg.Scraper.Concurrency = 5
	s := testScraper(cfg, fetch)
	defer s.Close()

	var reqs []plugin.Request
	for i := 0; i < 20; i++ {
		reqs = append(reqs, plugin.Request{URL: fmt.Sprintf("https://example.com/%d", i)})
	}

	results := s.ScrapeMany(reqs)
	if len(results) != 20 {
		t.Fatalf("expected 20 successes, got %d", len(results))
	}
	if fetch.maxInFlight > 5 {
		t.Errorf("worker pool leaked: %d fetches in flight, cap is 5", fetch.maxInFlight)
	}
	if fetch.maxInFlight < 2 {
		t.Errorf("expected concurrent fetches, saw at most %d in flight", fetch.maxInFlight)
	}
}

func TestScrapeMany_StopSkipsPending(t *testing.T) {
	fetch := newStubFetcher()
	fetch.delay = 10 * time.Millisecond

	cfg := testConfig()
	cfg.Scraper.Concurrency = 1
	s := testScraper(cfg, fetch)
	defer s.Close()

	s.Stop()

	results := s.ScrapeMany([]plugin.Request{
		{URL: "https://example.com/1"},
		{URL: "https://example.com/2"},
	})
	if len(results) != 0 {
		t.Errorf("stopped scraper must not dispatch work, got %d results", len(results))
	}
	if fetch.calls != 0 {
		t.Errorf("expected no fetches after Stop, got %d", fetch.calls)
	}
}

func TestEvents_FailureSurfacedAsEvent(t *testing.T) {
	fetch := newStubFetcher()
	fetch.fail["https://bad.example.com/"] = true

	s := testScraper(testConfig(), fetch)

	_ = s.ScrapeMany([]plugin.Request{{URL: "https://bad.example.com/"}})
	s.Close()

	sawError := false
	for event := range s.Events() {
		if event.Type == plugin.EventPageError && event.URL == "https://bad.example.com/" {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected an EventPageError for the failed URL")
	}
}
