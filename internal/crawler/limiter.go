package crawler

import "sync"

// DomainLimiter caps how many links under one host may be scheduled over
// the whole run. It is a lifetime budget, not a time-based rate.
type DomainLimiter struct {
	max    int
	mu     sync.Mutex
	counts map[string]int
}

// NewDomainLimiter creates a limiter admitting at most max links per domain
func NewDomainLimiter(max int) *DomainLimiter {
	return &DomainLimiter{
		max:    max,
		counts: make(map[string]int),
	}
}

// Admit consumes one unit of domain's budget. It returns false, leaving
// the counter untouched, once the budget is spent.
func (l *DomainLimiter) Admit(domain string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[domain] >= l.max {
		return false
	}
	l.counts[domain]++
	return true
}

// Count returns how many times domain has been admitted
func (l *DomainLimiter) Count(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[domain]
}

// Counts returns a copy of every counter
func (l *DomainLimiter) Counts() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Max returns the per-domain budget
func (l *DomainLimiter) Max() int {
	return l.max
}
