package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/derinwebs/goscrape/pkg/plugin"
)

func sampleResult() *plugin.Result {
	return &plugin.Result{
		URL:       "https://example.com/",
		FetchedAt: time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC),
		Title:     "Example",
		Paragraphs: []string{
			"first paragraph",
			"second paragraph",
		},
		Links: []plugin.Link{
			{Text: "Home", Href: "/"},
			{Text: "Docs", Href: "https://example.com/docs"},
		},
		Images: []plugin.Image{
			{OriginalURL: "https://example.com/a.png", SavedPath: "pictures/a.png"},
		},
	}
}

func TestNewWriter_UnsupportedFormat(t *testing.T) {
	if _, err := NewWriter("xml", "out.xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := NewWriter("JSON", "out.json"); err != nil {
		t.Errorf("format tag should be case-insensitive, got %v", err)
	}
}

func TestJSONWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w, err := NewWriter("json", path)
	if err != nil {
		t.Fatal(err)
	}

	original := sampleResult()
	if err := w.Write([]*plugin.Result{original}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var parsed plugin.Result
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if parsed.URL != original.URL || parsed.Title != original.Title {
		t.Errorf("round trip mismatch: %+v", parsed)
	}
	if !parsed.FetchedAt.Equal(original.FetchedAt) {
		t.Errorf("timestamp mismatch: want %v, got %v", original.FetchedAt, parsed.FetchedAt)
	}
	if !reflect.DeepEqual(parsed.Paragraphs, original.Paragraphs) {
		t.Errorf("paragraphs mismatch: %v", parsed.Paragraphs)
	}
	if !reflect.DeepEqual(parsed.Links, original.Links) {
		t.Errorf("links mismatch: %+v", parsed.Links)
	}
	if !reflect.DeepEqual(parsed.Images, original.Images) {
		t.Errorf("images mismatch: %+v", parsed.Images)
	}
}

func TestJSONWriter_BatchIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w, _ := NewWriter("json", path)

	if err := w.Write([]*plugin.Result{sampleResult(), sampleResult()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed []plugin.Result
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("batch output must be a JSON array: %v", err)
	}
	if len(parsed) != 2 {
		t.Errorf("expected 2 records, got %d", len(parsed))
	}
}

func TestCSVWriter_Flattening(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter("csv", path)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Write([]*plugin.Result{sampleResult()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d rows", len(rows))
	}

	if !reflect.DeepEqual(rows[0], []string{"url", "timestamp", "title", "paragraphs", "links"}) {
		t.Errorf("unexpected header: %v", rows[0])
	}

	row := rows[1]
	if row[0] != "https://example.com/" || row[2] != "Example" {
		t.Errorf("unexpected row: %v", row)
	}
	if row[3] != "first paragraph\nsecond paragraph" {
		t.Errorf("paragraphs must be newline-joined, got %q", row[3])
	}
	if !strings.Contains(row[4], "Home (/)") || !strings.Contains(row[4], "Docs (https://example.com/docs)") {
		t.Errorf("links must be flattened as text (href), got %q", row[4])
	}
}

func TestCSVWriter_EmptyBatchWritesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, _ := NewWriter("csv", path)

	if err := w.Write(nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected header only, got %d rows", len(rows))
	}
}
