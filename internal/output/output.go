// Package output persists scrape results as JSON or CSV files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/derinwebs/goscrape/pkg/plugin"
)

// NewWriter returns a writer for the given format tag. An unsupported
// format is an error at this boundary.
func NewWriter(format, path string) (plugin.ResultWriter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONWriter{path: path}, nil
	case "csv":
		return &CSVWriter{path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q", format)
	}
}

// JSONWriter writes the full nested result structure, indented.
type JSONWriter struct {
	path string
}

func (w *JSONWriter) Name() string { return "json" }

// Write persists the results. A single record is written as an object,
// a batch as an array.
func (w *JSONWriter) Write(results []*plugin.Result) error {
	var payload interface{} = results
	if len(results) == 1 {
		payload = results[0]
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// CSVWriter flattens each result to one row: paragraphs newline-joined,
// links newline-joined as "text (href)". Images are omitted from the
// tabular form.
type CSVWriter struct {
	path string
}

func (w *CSVWriter) Name() string { return "csv" }

var csvHeader = []string{"url", "timestamp", "title", "paragraphs", "links"}

func (w *CSVWriter) Write(results []*plugin.Result) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range results {
		links := make([]string, len(r.Links))
		for i, link := range r.Links {
			links[i] = fmt.Sprintf("%s (%s)", link.Text, link.Href)
		}

		row := []string{
			r.URL,
			r.FetchedAt.Format(time.RFC3339),
			r.Title,
			strings.Join(r.Paragraphs, "\n"),
			strings.Join(links, "\n"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
