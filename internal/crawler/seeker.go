// Package crawler implements the crawl-state engine: the frontier, address
// normalization and deduplication, the link filter, redirect policy and
// per-domain admission caps, driven one discovery cycle at a time.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/masahif/seeker/internal/parser"
)

// Seeker owns the crawl state. Every Execute call runs one cycle:
// pop, fetch, redirect check, parse, filter, admit, enqueue.
//
// State is guarded by a single mutex which is released while the page is
// fetched and parsed, so concurrent Execute calls are allowed; admission
// and the searched check-and-insert happen under the lock together.
type Seeker struct {
	fetcher  Fetcher
	filter   LinkFilter
	redirect *RedirectPolicy
	parser   LinkParser
	limiter  *DomainLimiter
	scope    string

	mu          sync.RWMutex
	frontier    *Frontier
	searched    map[string]struct{}
	found       map[string]struct{}
	redirects   []Redirect
	redirectSet map[[2]string]struct{}
	stats       Stats
	lastCycle   CycleStats
	inFlight    int
}

type seekerOptions struct {
	fetcher      Fetcher
	filter       LinkFilter
	scope        string
	parser       LinkParser
	selector     string
	limiter      *DomainLimiter
	maxPerDomain int
}

// Option configures a Seeker
type Option func(*seekerOptions)

// WithFetcher replaces the default HTTPFetcher
func WithFetcher(f Fetcher) Option {
	return func(o *seekerOptions) { o.fetcher = f }
}

// WithScope builds the default filter policy for scope
func WithScope(scope string) Option {
	return func(o *seekerOptions) { o.scope = scope }
}

// WithFilter replaces the default filter; it takes precedence over WithScope
func WithFilter(f LinkFilter) Option {
	return func(o *seekerOptions) { o.filter = f }
}

// WithLinkExtractor replaces the default anchor extractor
func WithLinkExtractor(p LinkParser) Option {
	return func(o *seekerOptions) { o.parser = p }
}

// WithSelector sets the CSS selector of the default extractor
func WithSelector(selector string) Option {
	return func(o *seekerOptions) { o.selector = selector }
}

// WithMaxPerDomain sets the per-domain admission budget
func WithMaxPerDomain(n int) Option {
	return func(o *seekerOptions) { o.maxPerDomain = n }
}

// WithLimiter replaces the per-domain limiter
func WithLimiter(l *DomainLimiter) Option {
	return func(o *seekerOptions) { o.limiter = l }
}

// NewSeeker creates an engine whose frontier holds seeds, the last seed
// being visited first. Configuration errors (selector, filter rules) are
// reported here so that they stop the program before any fetch.
func NewSeeker(seeds []Address, opts ...Option) (*Seeker, error) {
	o := &seekerOptions{
		scope:        "mit.edu",
		selector:     parser.DefaultLinkSelector,
		maxPerDomain: 200,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.filter == nil {
		f, err := NewFilter(DefaultFilterPolicy(o.scope))
		if err != nil {
			return nil, fmt.Errorf("failed to build filter: %w", err)
		}
		o.filter = f
	}

	if o.parser == nil {
		p, err := parser.NewLinkExtractor(o.selector)
		if err != nil {
			return nil, err
		}
		o.parser = p
	}

	if o.limiter == nil {
		if o.maxPerDomain <= 0 {
			return nil, fmt.Errorf("max per domain must be greater than 0, got %d", o.maxPerDomain)
		}
		o.limiter = NewDomainLimiter(o.maxPerDomain)
	}

	if o.fetcher == nil {
		o.fetcher = NewHTTPFetcher()
	}

	for i, seed := range seeds {
		if seed.IsZero() {
			return nil, fmt.Errorf("seed %d is empty", i)
		}
	}

	scope := o.scope
	if f, ok := o.filter.(*Filter); ok {
		scope = f.Scope()
	}

	return &Seeker{
		fetcher:     o.fetcher,
		filter:      o.filter,
		redirect:    NewRedirectPolicy(o.filter),
		parser:      o.parser,
		limiter:     o.limiter,
		scope:       scope,
		frontier:    NewFrontier(seeds),
		searched:    make(map[string]struct{}, 5000),
		found:       make(map[string]struct{}),
		redirectSet: make(map[[2]string]struct{}),
		stats: Stats{
			Failures:  make(map[string]int),
			StartTime: time.Now(),
		},
	}, nil
}

// Execute runs one discovery cycle. ErrEmptyFrontier means there was
// nothing to pop; every other error describes why the popped address was
// dropped. None of them leave the Seeker unusable.
func (s *Seeker) Execute(ctx context.Context) error {
	s.mu.Lock()
	base, ok := s.frontier.PopBack()
	if !ok {
		s.mu.Unlock()
		return ErrEmptyFrontier
	}
	s.stats.Cycles++
	s.inFlight++
	s.mu.Unlock()

	start := time.Now()
	cycle, err := s.cycle(ctx, base)

	s.mu.Lock()
	s.inFlight--
	if err != nil {
		s.stats.Failures[ErrorKind(err)]++
	} else {
		cycle.Duration = time.Since(start)
		s.stats.Succeeded++
		s.lastCycle = cycle
	}
	s.mu.Unlock()

	if err == nil {
		slog.Info("Found new links",
			"url", base.String(),
			"new", cycle.NewLinks,
			"candidates", cycle.Candidates,
			"ratio", fmt.Sprintf("%.2f", cycle.Ratio()))
	}
	return err
}

func (s *Seeker) cycle(ctx context.Context, base Address) (CycleStats, error) {
	slog.Debug("Beginning search", "url", base.String())

	res, err := s.fetcher.Fetch(ctx, base)
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return CycleStats{}, err
	}

	effective, redirect, err := s.redirect.Check(base, res.Effective)
	if redirect != nil {
		s.recordRedirect(*redirect)
	}
	if err != nil {
		slog.Warn("Not parsing page", "url", base.String(), "effective", res.Effective.String(), "error", err)
		return CycleStats{}, err
	}

	page, err := s.parser.Parse(res.Body)
	if err != nil {
		return CycleStats{}, fmt.Errorf("parse %s: %w", base, err)
	}

	candidates := make([]Address, 0, len(page.Hrefs))
	seen := make(map[string]struct{}, len(page.Hrefs))
	for _, href := range page.Hrefs {
		link, ok := Normalize(effective, href)
		if !ok {
			continue
		}
		if ok, reason := s.filter.Verdict(link); !ok {
			slog.Debug("Link rejected", "link", link.String(), "reason", reason)
			continue
		}
		key := link.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, link)
	}

	domains := make([]string, len(candidates))
	for i, link := range candidates {
		domain, ok := link.Domain()
		if !ok {
			slog.Error("Filter accepted a link without a domain", "link", link.String(), "page", base.String())
			return CycleStats{}, fmt.Errorf("%w: %s", ErrDomainExtraction, link)
		}
		domains[i] = domain
	}

	newLinks := s.admit(candidates, domains)

	return CycleStats{
		Base:       base,
		Effective:  effective,
		Title:      page.Title,
		Candidates: len(candidates),
		NewLinks:   newLinks,
	}, nil
}

// admit applies the domain budget and the searched set to candidates and
// pushes the unseen ones. It returns how many were pushed.
func (s *Seeker) admit(candidates []Address, domains []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pushed := 0
	for i, link := range candidates {
		if !s.limiter.Admit(domains[i]) {
			continue
		}
		s.found[domains[i]] = struct{}{}

		key := link.String()
		if _, seen := s.searched[key]; seen {
			continue
		}
		s.searched[key] = struct{}{}
		s.frontier.PushBack(link)
		pushed++
	}
	s.stats.Enqueued += pushed
	return pushed
}

func (s *Seeker) recordRedirect(r Redirect) {
	slog.Warn("Detected redirect", "from", r.From.String(), "to", r.To.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.redirectSet[r.key()]; dup {
		return
	}
	s.redirectSet[r.key()] = struct{}{}
	s.redirects = append(s.redirects, r)
}

// Scope returns the scope suffix of the default filter
func (s *Seeker) Scope() string {
	return s.scope
}

// Found returns the discovered domains, sorted
func (s *Seeker) Found() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.found)
}

// Searched returns every address ever enqueued after construction, sorted
func (s *Seeker) Searched() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.searched)
}

// SearchedLen returns the size of the searched set
func (s *Seeker) SearchedLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.searched)
}

// FrontierLen returns how many addresses are waiting
func (s *Seeker) FrontierLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frontier.Len()
}

// Redirects returns the recorded redirects in discovery order
func (s *Seeker) Redirects() []Redirect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Redirect, len(s.redirects))
	copy(out, s.redirects)
	return out
}

// Counts returns the per-domain admission counters
func (s *Seeker) Counts() map[string]int {
	return s.limiter.Counts()
}

// InFlight returns the number of cycles between pop and completion
func (s *Seeker) InFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// Idle reports whether the frontier is empty and no cycle is in flight,
// read under one lock so that a push between the two checks is not missed.
func (s *Seeker) Idle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frontier.Len() == 0 && s.inFlight == 0
}

// LastCycle returns the statistics of the most recent successful cycle
func (s *Seeker) LastCycle() CycleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCycle
}

// Stats returns cumulative counters
func (s *Seeker) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Seeker) statsLocked() Stats {
	stats := s.stats
	stats.Failures = make(map[string]int, len(s.stats.Failures))
	for k, v := range s.stats.Failures {
		stats.Failures[k] = v
	}
	stats.Duration = time.Since(stats.StartTime)
	return stats
}

// Snapshot copies the whole crawl state
func (s *Seeker) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	redirects := make([]Redirect, len(s.redirects))
	copy(redirects, s.redirects)

	return &Snapshot{
		Scope:     s.scope,
		Found:     sortedKeys(s.found),
		Searched:  sortedKeys(s.searched),
		Frontier:  s.frontier.Strings(),
		Redirects: redirects,
		Counts:    s.limiter.Counts(),
		Stats:     s.statsLocked(),
		TakenAt:   time.Now(),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
