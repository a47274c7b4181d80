package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func treeFetcher() *fakeFetcher {
	return &fakeFetcher{fallback: func(addr Address) fakePage {
		var n int
		host, _ := addr.Domain()
		_, _ = fmt.Sscanf(host, "h%d.site.edu", &n)
		return fakePage{body: links(
			fmt.Sprintf("http://h%d.site.edu/", 2*n),
			fmt.Sprintf("http://h%d.site.edu/", 2*n+1),
		)}
	}}
}

func TestRunnerStopsAtCycleBudget(t *testing.T) {
	fetcher := treeFetcher()
	s := newTestSeeker(t, fetcher, []string{"http://h1.site.edu/"})

	summary, err := NewRunner(s).Run(context.Background(), RunOptions{Cycles: 15, Workers: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Cycles != 15 {
		t.Errorf("summary.Cycles = %d, want 15", summary.Cycles)
	}
	if got := len(fetcher.Fetched()); got != 15 {
		t.Errorf("fetched %d pages, want 15", got)
	}
	if summary.Drained {
		t.Error("an unbounded site should not drain")
	}
	if got := s.Stats().Cycles; got != 15 {
		t.Errorf("Stats().Cycles = %d, want 15", got)
	}
}

func TestRunnerDrainsFrontier(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"http://www.site.edu/":  {body: links("/a", "/b")},
		"http://www.site.edu/a": {body: links("/b")},
		"http://www.site.edu/b": {body: links("/a")},
	}}
	s := newTestSeeker(t, fetcher, []string{"http://www.site.edu/"})

	summary, err := NewRunner(s).Run(context.Background(), RunOptions{Cycles: 100, Workers: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !summary.Drained {
		t.Error("expected the frontier to drain")
	}
	if summary.Cycles != 3 {
		t.Errorf("summary.Cycles = %d, want 3", summary.Cycles)
	}
	if s.FrontierLen() != 0 {
		t.Errorf("FrontierLen() = %d, want 0", s.FrontierLen())
	}
}

func TestRunnerCountsFailures(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"http://www.site.edu/":   {body: links("http://down.site.edu/", "http://moved.site.edu/")},
		"http://down.site.edu/":  {err: errors.New("connection reset")},
		"http://moved.site.edu/": {effective: "http://elsewhere.org/"},
	}}
	s := newTestSeeker(t, fetcher, []string{"http://www.site.edu/"})

	summary, err := NewRunner(s).Run(context.Background(), RunOptions{Cycles: 10, Workers: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Cycles != 3 {
		t.Errorf("summary.Cycles = %d, want 3", summary.Cycles)
	}
	if summary.Failures["transport"] != 1 {
		t.Errorf("transport failures = %d, want 1", summary.Failures["transport"])
	}
	if summary.Failures["invalid_destination"] != 1 {
		t.Errorf("invalid_destination failures = %d, want 1", summary.Failures["invalid_destination"])
	}
	if _, ok := summary.Failures["empty_frontier"]; ok {
		t.Error("an empty frontier is not a failure")
	}
}

func TestRunnerCancelled(t *testing.T) {
	s := newTestSeeker(t, treeFetcher(), []string{"http://h1.site.edu/"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(s).Run(ctx, RunOptions{Cycles: 10, Workers: 2})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRunnerTimeout(t *testing.T) {
	// Every page is slow; the deadline must end the run well before the budget
	fetcher := treeFetcher()
	slow := fetcher.fallback
	fetcher.fallback = func(addr Address) fakePage {
		time.Sleep(5 * time.Millisecond)
		return slow(addr)
	}
	s := newTestSeeker(t, fetcher, []string{"http://h1.site.edu/"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summary, err := NewRunner(s).Run(ctx, RunOptions{Cycles: 1000000, Workers: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if summary.Cycles == 0 || summary.Cycles >= 1000000 {
		t.Errorf("summary.Cycles = %d, want a partial run", summary.Cycles)
	}
}

func TestRunnerDefaultsOptions(t *testing.T) {
	s := newTestSeeker(t, treeFetcher(), []string{"http://h1.site.edu/"})

	summary, err := NewRunner(s).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Cycles != 1 {
		t.Errorf("summary.Cycles = %d, want 1", summary.Cycles)
	}
}

// gatedFetcher blocks fetches of gated addresses until release is closed
type gatedFetcher struct {
	*fakeFetcher
	gated   map[string]bool
	started chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Fetch(ctx context.Context, addr Address) (*FetchResult, error) {
	if f.gated[addr.String()] {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.fakeFetcher.Fetch(ctx, addr)
}

func newGatedFetcher(gated ...string) *gatedFetcher {
	f := &gatedFetcher{
		fakeFetcher: &fakeFetcher{pages: map[string]fakePage{
			"http://a.site.edu/":     {body: links("/next")},
			"http://a.site.edu/next": {body: links()},
		}},
		gated:   make(map[string]bool),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	for _, g := range gated {
		f.gated[g] = true
	}
	return f
}

func TestSeekerIdle(t *testing.T) {
	fetcher := newGatedFetcher("http://a.site.edu/")
	s := newTestSeeker(t, fetcher, []string{"http://a.site.edu/"})

	if s.Idle() {
		t.Fatal("Idle() = true with a seed waiting")
	}

	done := make(chan error, 1)
	go func() { done <- s.Execute(context.Background()) }()
	<-fetcher.started

	// Popped but not finished: the frontier is empty, the seeker is not idle
	if err := s.Execute(context.Background()); !errors.Is(err, ErrEmptyFrontier) {
		t.Fatalf("Execute() error = %v, want ErrEmptyFrontier", err)
	}
	if s.Idle() {
		t.Error("Idle() = true while a cycle is in flight")
	}

	close(fetcher.release)
	if err := <-done; err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if s.Idle() {
		t.Error("Idle() = true with a pushed link waiting")
	}

	if err := s.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !s.Idle() {
		t.Errorf("Idle() = false after draining, frontier = %d, in flight = %d", s.FrontierLen(), s.InFlight())
	}
}

func TestRunnerWaitsForInFlightCycle(t *testing.T) {
	fetcher := newGatedFetcher("http://a.site.edu/")
	s := newTestSeeker(t, fetcher, []string{"http://a.site.edu/"})

	type result struct {
		summary RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := NewRunner(s).Run(context.Background(), RunOptions{Cycles: 10, Workers: 2})
		done <- result{summary, err}
	}()

	// The second worker finds the frontier empty while the seed is being fetched
	<-fetcher.started
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if res.summary.Cycles != 2 {
		t.Errorf("summary.Cycles = %d, want 2", res.summary.Cycles)
	}
	if !res.summary.Drained {
		t.Error("summary.Drained = false, want true")
	}
	want := []string{"http://a.site.edu/", "http://a.site.edu/next"}
	if got := fetcher.Fetched(); !equalStrings(got, want) {
		t.Errorf("fetched %v, want %v", got, want)
	}
}
