// Package extractor evaluates selector configurations against parsed
// pages and produces structured content records.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/derinwebs/goscrape/pkg/plugin"
)

// TitleFallback is the title used when the selector is absent or matches
// no element.
const TitleFallback = "Title not found"

// Default caps on extracted collections.
const (
	DefaultMaxParagraphs = 5
	DefaultMaxLinks      = 10
)

// Content is the structured record extracted from a single page.
type Content struct {
	Title      string
	Paragraphs []string
	Links      []plugin.Link
}

// Extractor turns parsed documents into Content records.
type Extractor struct {
	maxParagraphs int
	maxLinks      int
}

// New creates an extractor with the given collection caps. Non-positive
// values fall back to the defaults.
func New(maxParagraphs, maxLinks int) *Extractor {
	if maxParagraphs <= 0 {
		maxParagraphs = DefaultMaxParagraphs
	}
	if maxLinks <= 0 {
		maxLinks = DefaultMaxLinks
	}
	return &Extractor{
		maxParagraphs: maxParagraphs,
		maxLinks:      maxLinks,
	}
}

// Extract evaluates sel against doc. A selector matching zero elements
// yields an empty field, never an error; invalid or empty selector
// expressions behave like zero matches. Unknown keys in sel.Extra are
// ignored.
func (e *Extractor) Extract(doc *goquery.Document, sel *plugin.SelectorConfig) *Content {
	content := &Content{
		Title:      TitleFallback,
		Paragraphs: []string{},
		Links:      []plugin.Link{},
	}
	if doc == nil || sel == nil {
		return content
	}

	if m := compileMatcher(sel.Title); m != nil {
		first := doc.FindMatcher(m).First()
		if first.Length() > 0 {
			content.Title = strings.TrimSpace(first.Text())
		}
	}

	if m := compileMatcher(sel.Paragraphs); m != nil {
		doc.FindMatcher(m).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i >= e.maxParagraphs {
				return false
			}
			content.Paragraphs = append(content.Paragraphs, strings.TrimSpace(s.Text()))
			return true
		})
	}

	if m := compileMatcher(sel.Links); m != nil {
		// The cap applies to matched elements; elements without an href
		// are then dropped, so fewer than maxLinks entries may remain.
		doc.FindMatcher(m).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i >= e.maxLinks {
				return false
			}
			href, exists := s.Attr("href")
			if !exists || href == "" {
				return true
			}
			content.Links = append(content.Links, plugin.Link{
				Text: strings.TrimSpace(s.Text()),
				Href: href,
			})
			return true
		})
	}

	return content
}

// ImageSources returns the src attribute of every img element in document
// order. Empty or absent src values are skipped silently.
func ImageSources(doc *goquery.Document) []string {
	var srcs []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, exists := s.Attr("src")
		if !exists || src == "" {
			return
		}
		srcs = append(srcs, src)
	})
	return srcs
}

// compileMatcher compiles a selector expression, treating empty and
// malformed expressions as match-nothing.
func compileMatcher(expr string) goquery.Matcher {
	if expr == "" {
		return nil
	}
	sel, err := cascadia.Compile(expr)
	if err != nil {
		return nil
	}
	return sel
}
