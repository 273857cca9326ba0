// Package httpds is the HTTP side of the updater: a small client with
// retry/backoff used for probing the FCC weekly dump's freshness (HEAD) and
// for downloading the archive itself (GET). Transient failures — transport
// errors, 5xx, 429 — retry with exponential backoff; everything else is
// final. Context cancellation is respected during requests and backoff waits.
package httpds

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// Config configures the client. Zero values get defaults: 10 minute timeout
// (archive downloads are hundreds of megabytes), 3 retries, 1s initial
// backoff capped at 30s.
type Config struct {
	// Timeout applies per request at the http.Client level. It must cover a
	// full archive download, not just headers.
	Timeout time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialBackoff doubles on each retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate verification. Only for
	// endpoints with broken certificates.
	InsecureSkipVerify bool

	// UserAgent is sent on every request when non-empty.
	UserAgent string

	// Transport overrides the default *http.Transport, mainly for tests.
	Transport http.RoundTripper
}

// Client wraps an http.Client with retry and backoff behavior.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	userAgent      string

	// sleep is injectable to make tests fast and deterministic.
	sleep func(time.Duration) // nil means real timer-based waiting
}

// NewClient constructs a Client from cfg, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		userAgent:      cfg.UserAgent,
	}
}

// Do sends one request with retry and backoff. The returned response has a
// non-nil Body the caller must close. A non-2xx final status is returned as
// an error with the body already closed.
func (c *Client) Do(ctx context.Context, method, url string) (*http.Response, error) {
	if url == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}

	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			// Transport-level failure, always retryable.
			lastErr = err
		case isRetryableStatus(resp.StatusCode):
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("httpds: retryable status %d from %s %s", resp.StatusCode, method, url)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			_ = resp.Body.Close()
			return nil, fmt.Errorf("httpds: status %d from %s %s", resp.StatusCode, method, url)
		default:
			return resp, nil
		}

		if attempt+1 >= attempts {
			return nil, lastErr
		}
		if err := c.wait(ctx, backoffDuration(c.initialBackoff, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Get fetches url. The caller must close the response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url)
}

// Head probes url and returns its Last-Modified header parsed as a time,
// along with the advertised Content-Length (-1 when unknown). A missing or
// unparseable Last-Modified header returns a zero time and no error; the
// caller decides what an unknown modification time means.
func (c *Client) Head(ctx context.Context, url string) (lastModified time.Time, size int64, err error) {
	resp, err := c.Do(ctx, http.MethodHead, url)
	if err != nil {
		return time.Time{}, 0, err
	}
	defer resp.Body.Close()

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, perr := http.ParseTime(lm); perr == nil {
			return t, resp.ContentLength, nil
		}
	}
	return time.Time{}, resp.ContentLength, nil
}

// isRetryableStatus reports whether the status should trigger a retry.
// 5xx and 429 are transient; everything else is final.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns the exponential backoff for the given 0-based
// retry index, clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

// wait blocks for d via the injected sleep when set, or a cancellable timer.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		c.sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
