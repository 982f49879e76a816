// Package fetch wraps net/http GETs with a bounded retry budget so that no
// upstream call can hang or retry forever.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxBodyBytes caps how much of a response body is read into memory.
const maxBodyBytes = 20 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.StatusCode)
}

// IsStatus reports whether err is a StatusError carrying one of the given codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.StatusCode == c {
			return true
		}
	}
	return false
}

// Options configures a Client. Zero values fall back to the defaults below.
type Options struct {
	Timeout         time.Duration
	MaxAttempts     int
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	UserAgent       string
}

// Client performs GET requests with exponential backoff on transient failures.
// 4xx responses are never retried.
type Client struct {
	httpClient      *http.Client
	userAgent       string
	maxAttempts     int
	maxElapsed      time.Duration
	initialInterval time.Duration
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = time.Minute
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Prophet/1.0 (+https://github.com/thinkscotty/prophet)"
	}
	return &Client{
		httpClient:      &http.Client{Timeout: opts.Timeout},
		userAgent:       opts.UserAgent,
		maxAttempts:     opts.MaxAttempts,
		maxElapsed:      opts.MaxElapsed,
		initialInterval: opts.InitialInterval,
	}
}

// Get fetches url and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var body []byte
	attempt := 0

	op := func() error {
		attempt++
		b, err := c.do(ctx, url, header)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			slog.Debug("Fetch attempt failed", "url", url, "attempt", attempt, "error", err)
			return err
		}
		body = b
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	exp.MaxElapsedTime = c.maxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxAttempts-1)), ctx)
}

func (c *Client) do(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: snippet}
	}
	return data, nil
}
