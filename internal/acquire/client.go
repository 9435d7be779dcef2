package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (compatible; papergest/1.0)"
	DefaultListingTimeout = 10 * time.Second
	DefaultTimeout        = 30 * time.Second
	DefaultMaxBytes       = 50 << 20
	DefaultRateLimit      = 1.0
)

// Client performs polite HTTP GETs: every request waits on a shared rate
// limiter and response bodies are capped at MaxBytes.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	userAgent      string
	listingTimeout time.Duration
	timeout        time.Duration
	maxBytes       int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the sustained request rate. Zero or less disables
// limiting.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithTimeouts sets the listing and download timeouts.
func WithTimeouts(listing, download time.Duration) ClientOption {
	return func(c *Client) {
		if listing > 0 {
			c.listingTimeout = listing
		}
		if download > 0 {
			c.timeout = download
		}
	}
}

// WithMaxBytes caps downloaded payloads.
func WithMaxBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		userAgent:      DefaultUserAgent,
		listingTimeout: DefaultListingTimeout,
		timeout:        DefaultTimeout,
		maxBytes:       DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Response is a fully read response body.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// GetListing fetches a listing page under the listing timeout.
func (c *Client) GetListing(ctx context.Context, u string) (*Response, error) {
	return c.get(ctx, u, c.listingTimeout)
}

// Download fetches a document payload under the download timeout.
func (c *Client) Download(ctx context.Context, u string) (*Response, error) {
	return c.get(ctx, u, c.timeout)
}

func (c *Client) get(ctx context.Context, u string, timeout time.Duration) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", u, c.maxBytes)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
