package crawler

import "errors"

var (
	// ErrEmptyFrontier is returned when there is no address left to visit
	ErrEmptyFrontier = errors.New("frontier is empty")
	// ErrTransport is returned when both the strict and the permissive fetch failed
	ErrTransport = errors.New("transport failure")
	// ErrInvalidDestination is returned when a fetch ended on an address the filter rejects
	ErrInvalidDestination = errors.New("redirected to invalid address")
	// ErrOutOfScopeRedirect is returned when an out-of-scope address redirected to another host
	ErrOutOfScopeRedirect = errors.New("out-of-scope address redirected")
	// ErrDomainExtraction is returned when an accepted link has no host; the filter should make this impossible
	ErrDomainExtraction = errors.New("accepted link has no domain")
)

// ErrorKind maps a cycle error to a short stable label for logs and counters
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyFrontier):
		return "empty_frontier"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrInvalidDestination):
		return "invalid_destination"
	case errors.Is(err, ErrOutOfScopeRedirect):
		return "out_of_scope_redirect"
	case errors.Is(err, ErrDomainExtraction):
		return "domain_extraction"
	default:
		return "other"
	}
}
