package crawler

import (
	"context"

	"github.com/masahif/seeker/internal/parser"
)

// Fetcher retrieves a page and reports where the request finally landed
type Fetcher interface {
	Fetch(ctx context.Context, addr Address) (*FetchResult, error)
}

// LinkParser extracts raw hrefs (and the title) from an HTML body
type LinkParser interface {
	Parse(body string) (*parser.ParseResult, error)
}

// LinkFilter decides which addresses are eligible and which hosts are in scope
type LinkFilter interface {
	Verdict(a Address) (bool, string)
	InScope(host string) bool
}

var (
	_ Fetcher    = (*HTTPFetcher)(nil)
	_ LinkParser = (*parser.LinkExtractor)(nil)
	_ LinkFilter = (*Filter)(nil)
)
