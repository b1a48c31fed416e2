// Package apiclient is the shared HTTP client for the academic platform's
// REST API: it resolves endpoint paths, attaches the session bearer token,
// throttles outbound calls and turns failed responses into *Error values.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Its-donkey/campus-portal/logging"
)

// TokenSource supplies the bearer token for each request. An empty token
// means the call is made anonymously.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	// BaseURL is prepended to relative paths, e.g. "http://host/api".
	BaseURL string
	// Timeout bounds non-streaming calls. Streaming calls are bounded only
	// by their context.
	Timeout time.Duration
	// RateLimit is requests per second; zero disables throttling.
	RateLimit float64
	RateBurst int
	Tokens    TokenSource
	Logger    *logging.Logger
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

// Client issues API requests.
type Client struct {
	base    string
	timeout time.Duration
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	logger  *logging.Logger
}

// New builds a Client. Outbound requests are logged through a
// logging.Transport.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		base:    strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/"),
		timeout: timeout,
		http:    &http.Client{Transport: logging.NewTransport(opts.Transport, logger)},
		tokens:  opts.Tokens,
		limiter: limiter,
		logger:  logger,
	}
}

// Logger returns the client's logger.
func (c *Client) Logger() *logging.Logger {
	return c.logger
}

// URL resolves path against the base URL. Absolute URLs are returned as-is.
func (c *Client) URL(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = c.base + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

// NewRequest builds a request for path. A non-nil body is JSON encoded. The
// bearer token is attached when the token source has one.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := strings.TrimSpace(c.tokens.Token()); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// Do sends req after waiting for the rate limiter. The caller owns the
// response body. Non-success statuses are not turned into errors here; use
// CheckResponse.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// GetJSON issues a GET for path and decodes a successful JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
