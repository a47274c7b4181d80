// Package parser extracts hyperlink references from HTML documents.
// Selectors are compiled once, when the parser is built, so a malformed
// selector is reported at startup rather than on every page.
package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// DefaultLinkSelector matches every anchor carrying an href attribute.
const DefaultLinkSelector = "a[href]"

var titleSelector = cascadia.MustCompile("title")

// LinkExtractor pulls raw href values out of HTML using a fixed selector
type LinkExtractor struct {
	selector string
	links    cascadia.Selector
}

// ParseResult contains the parsed HTML data
type ParseResult struct {
	Title string
	Hrefs []string // raw attribute values, document order, duplicates kept
}

// NewLinkExtractor compiles selector. An empty selector means DefaultLinkSelector.
func NewLinkExtractor(selector string) (*LinkExtractor, error) {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultLinkSelector
	}

	compiled, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid link selector %q: %w", selector, err)
	}

	return &LinkExtractor{
		selector: selector,
		links:    compiled,
	}, nil
}

// Selector returns the selector source the extractor was built with
func (e *LinkExtractor) Selector() string {
	return e.selector
}

// Parse parses body as HTML and collects the page title and every href
// attribute matched by the extractor's selector. Blank hrefs are skipped;
// resolution against a base address is left to the caller.
func (e *LinkExtractor) Parse(body string) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &ParseResult{
		Title: strings.TrimSpace(doc.FindMatcher(titleSelector).First().Text()),
		Hrefs: []string{},
	}

	doc.FindMatcher(e.links).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		result.Hrefs = append(result.Hrefs, href)
	})

	return result, nil
}

// Hrefs is Parse without the title
func (e *LinkExtractor) Hrefs(body string) ([]string, error) {
	result, err := e.Parse(body)
	if err != nil {
		return nil, err
	}
	return result.Hrefs, nil
}
