package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RunOptions bounds a Run
type RunOptions struct {
	Cycles  int // number of Execute calls, at least 1
	Workers int // concurrent Execute callers, at least 1
}

// RunSummary reports what a Run did
type RunSummary struct {
	Cycles   int            // Execute calls that popped an address
	Failures map[string]int // by ErrorKind, empty_frontier excluded
	Drained  bool           // the frontier ran dry before the budget was spent
	Duration time.Duration
}

// Runner drives a Seeker for a fixed number of cycles
type Runner struct {
	seeker   *Seeker
	idle     time.Duration
	progress rate.Sometimes
}

// NewRunner creates a runner for seeker
func NewRunner(seeker *Seeker) *Runner {
	return &Runner{
		seeker:   seeker,
		idle:     20 * time.Millisecond,
		progress: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Run calls Execute until opts.Cycles cycles have popped an address, the
// frontier is empty with nothing in flight, or ctx is cancelled. Cycle
// errors are logged and counted, never returned; the only error is ctx's.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	if opts.Cycles < 1 {
		opts.Cycles = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	start := time.Now()
	slog.Info("Starting crawl", "cycles", opts.Cycles, "workers", opts.Workers, "scope", r.seeker.Scope(), "frontier", r.seeker.FrontierLen())

	var (
		budget   atomic.Int64
		executed atomic.Int64
		drained  atomic.Bool
		mu       sync.Mutex
		failures = make(map[string]int)
	)
	budget.Store(int64(opts.Cycles))

	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < opts.Workers; id++ {
		g.Go(func() error {
			return r.worker(ctx, id, &budget, &executed, &drained, func(kind string) {
				mu.Lock()
				failures[kind]++
				mu.Unlock()
			})
		})
	}
	err := g.Wait()

	summary := RunSummary{
		Cycles:   int(executed.Load()),
		Failures: failures,
		Drained:  drained.Load(),
		Duration: time.Since(start),
	}

	if err != nil {
		slog.Info("Crawl cancelled", "cycles", summary.Cycles, "duration", summary.Duration)
		return summary, err
	}
	slog.Info("Crawl completed",
		"cycles", summary.Cycles,
		"found", len(r.seeker.Found()),
		"searched", r.seeker.SearchedLen(),
		"frontier", r.seeker.FrontierLen(),
		"drained", summary.Drained,
		"duration", summary.Duration)
	return summary, nil
}

func (r *Runner) worker(ctx context.Context, id int, budget, executed *atomic.Int64, drained *atomic.Bool, fail func(string)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Claim a cycle before executing; give it back if nothing was popped
		if budget.Add(-1) < 0 {
			budget.Add(1)
			return nil
		}

		err := r.seeker.Execute(ctx)
		switch {
		case err == nil:
			executed.Add(1)
		case errors.Is(err, ErrEmptyFrontier):
			budget.Add(1)
			if r.seeker.Idle() {
				drained.Store(true)
				slog.Debug("Worker stopping on empty frontier", "worker_id", id)
				return nil
			}
			// A finished cycle pushed links after the pop failed
			if r.seeker.FrontierLen() > 0 {
				continue
			}
			// Another worker may still push links
			if err := r.sleep(ctx); err != nil {
				return err
			}
			continue
		default:
			executed.Add(1)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			kind := ErrorKind(err)
			fail(kind)
			slog.Warn("Cycle failed", "worker_id", id, "kind", kind, "error", err)
		}

		r.progress.Do(func() {
			stats := r.seeker.Stats()
			slog.Info("Crawling stats",
				"cycles", stats.Cycles,
				"found", len(r.seeker.Found()),
				"searched", r.seeker.SearchedLen(),
				"frontier", r.seeker.FrontierLen(),
				"ratio", r.seeker.LastCycle().Ratio(),
				"duration", stats.Duration)
		})
	}
}

func (r *Runner) sleep(ctx context.Context) error {
	t := time.NewTimer(r.idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
