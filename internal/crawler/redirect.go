package crawler

import "fmt"

// RedirectPolicy decides whether a fetch that may have been redirected can
// be parsed, and from which base its relative links are resolved.
type RedirectPolicy struct {
	filter LinkFilter
}

// NewRedirectPolicy creates a policy sharing filter with the engine
func NewRedirectPolicy(filter LinkFilter) *RedirectPolicy {
	return &RedirectPolicy{filter: filter}
}

// Check returns the base for link resolution. Whenever the host changed, a
// Redirect is returned for recording, even alongside an error.
//
// A change of scheme or a trailing slash (http -> https, /a -> /a/) is not
// a redirect here; only a change of host counts.
func (p *RedirectPolicy) Check(requested, effective Address) (Address, *Redirect, error) {
	if ok, reason := p.filter.Verdict(effective); !ok {
		return Address{}, nil, fmt.Errorf("%w: <%s> -> <%s> (%s)", ErrInvalidDestination, requested, effective, reason)
	}

	fromHost, _ := requested.Domain()
	toHost, _ := effective.Domain()
	if fromHost == toHost {
		return requested, nil, nil
	}

	redirect := &Redirect{From: requested, To: effective}
	if !p.filter.InScope(fromHost) {
		return Address{}, redirect, fmt.Errorf("%w: %s", ErrOutOfScopeRedirect, redirect)
	}
	return effective, redirect, nil
}
