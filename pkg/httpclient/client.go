// Package httpclient provides a retrying HTTP client for the backend calls:
// bounded exponential backoff with jitter, Retry-After awareness, and request
// body replay via GetBody.
package httpclient

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// RateLimitInfo carries backoff hints parsed from response headers.
type RateLimitInfo struct {
	RetryAfter time.Duration
	ResetTime  int64
}

type RateLimitHeaderParser func(http.Header) RateLimitInfo

// RetryDecider reports whether a response status is worth retrying.
type RetryDecider func(statusCode int) bool

type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	decider      RetryDecider
	rng          *rand.Rand
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

func WithRetryDecider(decider RetryDecider) Option {
	return func(c *Client) {
		c.decider = decider
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 120 * time.Second},
		maxRetries:   3,
		baseDelay:    500 * time.Millisecond,
		headerParser: ParseRetryHeaders,
		decider:      DefaultRetryDecider,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// DefaultRetryDecider retries rate limits and server errors.
func DefaultRetryDecider(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// Do issues the request, replaying the body via GetBody on each retry.
// Transport-level failures and retryable statuses get up to maxRetries extra
// attempts; everything else returns immediately. The caller owns the response
// body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport failure: retryable unless the context is done.
			if req.Context().Err() != nil {
				return nil, err
			}
			lastResp, lastErr = nil, err
		} else if !c.decider(resp.StatusCode) {
			return resp, nil
		} else {
			lastResp, lastErr = resp, fmt.Errorf("HTTP %d", resp.StatusCode)
		}

		if attempt >= c.maxRetries {
			break
		}

		var info RateLimitInfo
		if lastResp != nil {
			if c.headerParser != nil {
				info = c.headerParser(lastResp.Header)
			}
			lastResp.Body.Close()
		}

		delay := c.RetryDelay(attempt, info)
		slog.Debug("retrying backend request",
			"attempt", attempt+1, "max", c.maxRetries, "delay", delay)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}

	if lastResp != nil {
		return lastResp, &RetryableError{
			StatusCode: lastResp.StatusCode,
			Message:    fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
			Err:        lastErr,
		}
	}
	return nil, &RetryableError{
		Message: fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
		Err:     lastErr,
	}
}

// RetryDelay computes the wait before the given attempt's retry: Retry-After
// or a rate-limit reset when provided, otherwise exponential backoff from the
// base delay with ±20% jitter.
func (c *Client) RetryDelay(attempt int, info RateLimitInfo) time.Duration {
	if info.RetryAfter > 0 {
		return info.RetryAfter
	}
	if info.ResetTime > 0 {
		if delay := time.Until(time.Unix(info.ResetTime, 0)); delay > 0 {
			return delay
		}
	}

	delay := c.baseDelay << uint(attempt)
	jitter := 0.8 + 0.4*c.rng.Float64()
	return time.Duration(float64(delay) * jitter)
}
