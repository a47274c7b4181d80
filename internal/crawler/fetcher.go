package crawler

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

// FetchResult is what a Fetcher hands back to the engine
type FetchResult struct {
	Requested   Address
	Effective   Address // final address after redirects
	StatusCode  int
	ContentType string
	Body        string // decoded to UTF-8
	Insecure    bool   // served by the permissive client
	Truncated   bool   // body exceeded the size limit and was cut
	Duration    time.Duration
}

// HTTPFetcher issues GET requests with a strict client and, when that
// fails, retries once with a client that skips certificate verification.
type HTTPFetcher struct {
	strict      *http.Client
	permissive  *http.Client
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
	transport   *http.Transport
}

// FetcherOption configures an HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout bounds each attempt, not the pair
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize caps how many body bytes are read
func WithMaxBodySize(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithTransport uses t as the template for both clients. The permissive
// client gets a clone with certificate verification disabled.
func WithTransport(t *http.Transport) FetcherOption {
	return func(f *HTTPFetcher) {
		f.transport = t
	}
}

// NewHTTPFetcher creates a fetcher with a 10 second timeout per attempt
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		userAgent:   "Seeker/1.0",
		timeout:     10 * time.Second,
		maxBodySize: 10 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(f)
	}

	base := f.transport
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	strictTransport := base.Clone()
	permissiveTransport := base.Clone()
	if permissiveTransport.TLSClientConfig == nil {
		permissiveTransport.TLSClientConfig = &tls.Config{}
	}
	permissiveTransport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402 -- fallback for broken institutional certificates

	f.strict = f.newClient(strictTransport)
	f.permissive = f.newClient(permissiveTransport)
	return f
}

func (f *HTTPFetcher) newClient(t http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: t,
		Timeout:   f.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// Fetch retrieves addr. The returned error wraps ErrTransport when both
// clients failed.
func (f *HTTPFetcher) Fetch(ctx context.Context, addr Address) (*FetchResult, error) {
	start := time.Now()

	result, strictErr := f.get(ctx, f.strict, addr)
	if strictErr == nil {
		result.Duration = time.Since(start)
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, addr, ctx.Err())
	}

	slog.Info("Switching to permissive client", "url", addr.String(), "error", strictErr)

	result, permissiveErr := f.get(ctx, f.permissive, addr)
	if permissiveErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, addr, errors.Join(strictErr, permissiveErr))
	}
	result.Insecure = true
	result.Duration = time.Since(start)
	return result, nil
}

func (f *HTTPFetcher) get(ctx context.Context, client *http.Client, addr Address) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")

	// One byte past the limit tells a cut body from one that fits exactly
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	truncated := int64(len(raw)) > f.maxBodySize
	if truncated {
		raw = raw[:f.maxBodySize]
		slog.Debug("Response body truncated", "url", addr.String(), "limit", f.maxBodySize)
	}

	// Decode to UTF-8 using the header charset, a <meta> hint, or sniffing
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	effective, err := ParseAddress(resp.Request.URL.String())
	if err != nil {
		return nil, fmt.Errorf("invalid final url %q: %w", resp.Request.URL, err)
	}

	return &FetchResult{
		Requested:   addr,
		Effective:   effective,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        string(body),
		Truncated:   truncated,
	}, nil
}

// Close releases idle connections of both clients
func (f *HTTPFetcher) Close() {
	f.strict.CloseIdleConnections()
	f.permissive.CloseIdleConnections()
}
