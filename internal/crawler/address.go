package crawler

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// Address is an absolute URL with its fragment and query removed, scheme
// and host lower-cased, and an empty path on a hosted URL replaced by "/".
// Two addresses are the same address when their String forms are equal.
type Address struct {
	u url.URL
}

// ParseAddress normalizes a standalone absolute URL such as a seed or the
// final URL of a response. Relative references are rejected.
func ParseAddress(raw string) (Address, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Address{}, err
	}
	if !u.IsAbs() {
		return Address{}, fmt.Errorf("address %q is not absolute", raw)
	}
	return newAddress(u), nil
}

// MustParseAddress is ParseAddress for constants and tests
func MustParseAddress(raw string) Address {
	a, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// Normalize turns an href found on the page at base into an Address.
// Absolute hrefs are used as they are, anything else is joined onto base.
// It reports false, after logging the reason, when href cannot be parsed.
func Normalize(base Address, href string) (Address, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		slog.Debug("Failed to join link with base", "base", base.String(), "href", href, "error", err)
		return Address{}, false
	}

	if ref.IsAbs() {
		return newAddress(ref), true
	}
	return newAddress(base.u.ResolveReference(ref)), true
}

func newAddress(u *url.URL) Address {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.RawQuery = ""
	c.ForceQuery = false
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Host != "" && c.Opaque == "" && c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	if c.User != nil {
		user := *c.User
		c.User = &user
	}
	return Address{u: c}
}

// String returns the canonical form used for identity
func (a Address) String() string {
	return a.u.String()
}

// IsZero reports whether a is the zero Address
func (a Address) IsZero() bool {
	return a.u == url.URL{}
}

// URL returns a copy of the underlying URL
func (a Address) URL() *url.URL {
	c := a.u
	return &c
}

// Scheme returns the lower-cased scheme
func (a Address) Scheme() string {
	return a.u.Scheme
}

// Path returns the decoded path
func (a Address) Path() string {
	return a.u.Path
}

// Domain returns the host name without port. IP literals are not domains
// and, like a missing host, yield false.
func (a Address) Domain() (string, bool) {
	host := a.u.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return "", false
	}
	return host, true
}

// Equal reports whether both addresses have the same canonical form
func (a Address) Equal(b Address) bool {
	return a.String() == b.String()
}
