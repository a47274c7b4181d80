package crawler

import "time"

// Redirect records a fetch whose final address is on another host
type Redirect struct {
	From Address
	To   Address
}

func (r Redirect) String() string {
	return "<" + r.From.String() + "> -> <" + r.To.String() + ">"
}

func (r Redirect) key() [2]string {
	return [2]string{r.From.String(), r.To.String()}
}

// CycleStats describes one successful discovery cycle
type CycleStats struct {
	Base       Address // address popped from the frontier
	Effective  Address // base used to resolve links, after redirect policy
	Title      string
	Candidates int // distinct links that passed the filter
	NewLinks   int // candidates pushed onto the frontier
	Duration   time.Duration
}

// Ratio is NewLinks/Candidates, 0 when there were no candidates
func (c CycleStats) Ratio() float64 {
	if c.Candidates == 0 {
		return 0
	}
	return float64(c.NewLinks) / float64(c.Candidates)
}

// Stats are cumulative counters over the lifetime of a Seeker
type Stats struct {
	Cycles    int            // Execute calls that popped an address
	Succeeded int            // cycles that parsed a page
	Failures  map[string]int // by ErrorKind
	Enqueued  int            // frontier pushes after construction
	StartTime time.Time
	Duration  time.Duration
}

// Snapshot is a read-only copy of the crawl state
type Snapshot struct {
	Scope     string
	Found     []string // sorted
	Searched  []string // sorted
	Frontier  []string // bottom to top; the last element is visited next
	Redirects []Redirect
	Counts    map[string]int
	Stats     Stats
	TakenAt   time.Time
}
