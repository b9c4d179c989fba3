// Package assets downloads the images referenced by a scraped page.
//
// Individual image failures are absorbed here: they are logged and the
// image is excluded from the outcome slice, but the owning page scrape
// never fails because of them.
package assets

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/derinwebs/goscrape/internal/logger"
	"github.com/derinwebs/goscrape/pkg/plugin"
)

// unsafeChars matches everything that may not appear in a saved filename.
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Downloader fetches images and persists them under a target directory.
type Downloader struct {
	client    *http.Client
	userAgent string
	log       *logger.Logger
}

// New creates a downloader. A zero timeout leaves requests unbounded,
// matching the page fetcher's default.
func New(userAgent string, timeout time.Duration, log *logger.Logger) *Downloader {
	return &Downloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		log:       log,
	}
}

// DownloadAll resolves each src against pageURL, fetches it and writes it
// to dir. Failed or skipped images are simply absent from the returned
// slice. The directory is created on first use; re-running against an
// existing directory is not an error.
func (d *Downloader) DownloadAll(pageURL string, srcs []string, dir string) []plugin.Image {
	if len(srcs) == 0 {
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		d.log.Warn("skipping image download, unparseable page url", "url", pageURL, "err", err)
		return nil
	}

	// MkdirAll is idempotent, so concurrent first use across batch
	// workers is safe.
	if err := os.MkdirAll(dir, 0755); err != nil {
		d.log.Warn("cannot create image directory", "dir", dir, "err", err)
		return nil
	}

	var images []plugin.Image
	for _, src := range srcs {
		if src == "" {
			continue
		}

		ref, err := url.Parse(src)
		if err != nil {
			d.log.Warn("skipping malformed image src", "src", src, "err", err)
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}

		savedPath, err := d.download(resolved, dir)
		if err != nil {
			scrapeErr := plugin.NewScrapeError(plugin.AssetFetchError, resolved.String(), "%v", err)
			d.log.Warn("image download failed", "url", resolved.String(), "err", scrapeErr.Detail)
			continue
		}

		images = append(images, plugin.Image{
			OriginalURL: resolved.String(),
			SavedPath:   savedPath,
		})
	}
	return images
}

// download fetches one image and streams it to disk, returning the saved
// path. Filename collisions overwrite; distinct filenames are assumed.
func (d *Downloader) download(imgURL *url.URL, dir string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, imgURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	savedPath := filepath.Join(dir, filenameFor(imgURL))
	out, err := os.Create(savedPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(savedPath)
		return "", fmt.Errorf("write file: %w", err)
	}
	return savedPath, nil
}

// filenameFor derives a safe filename from the URL path. When nothing
// usable remains a timestamped name is synthesized.
func filenameFor(imgURL *url.URL) string {
	name := unsafeChars.ReplaceAllString(path.Base(imgURL.Path), "")
	if name == "" || name == "." {
		name = fmt.Sprintf("image_%d.jpg", time.Now().Unix())
	}
	return name
}
