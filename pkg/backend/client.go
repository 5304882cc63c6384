// Package backend is the thin HTTP client for an OpenAI-style
// chat-completions endpoint: authentication, retries on transient failures,
// and SSE decoding for streamed responses.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/78Spinoza/claudeproxy/pkg/httpclient"
	"github.com/78Spinoza/claudeproxy/pkg/openai"
)

const (
	dialTimeout       = 10 * time.Second
	headerTimeout     = 60 * time.Second
	interChunkTimeout = 30 * time.Second
	requestTimeout    = 120 * time.Second
	maxConnsPerHost   = 32
)

// Client talks to one backend endpoint. The credential is read once at
// construction and never logged.
type Client struct {
	name      string
	url       string
	apiKey    string
	retrying  *httpclient.Client
	streaming *httpclient.Client
}

// New builds a client for the given chat-completions URL. Both the buffered
// and the streaming paths share one transport, capped at 32 connections per
// host with HTTP/2 enabled.
func New(name, url, apiKey string) *Client {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
		ResponseHeaderTimeout: headerTimeout,
		MaxConnsPerHost:       maxConnsPerHost,
		MaxIdleConnsPerHost:   8,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		name:   name,
		url:    url,
		apiKey: apiKey,
		retrying: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Transport: transport, Timeout: requestTimeout}),
		),
		// No overall timeout on the streaming client; the inter-chunk
		// watchdog and the request context bound it instead.
		streaming: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Transport: transport}),
		),
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) newRequest(ctx context.Context, req *openai.Request) (*http.Request, error) {
	body, err := req.Marshal()
	if err != nil {
		return nil, protocolError("marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, protocolError("build request: %v", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// Send issues a non-streaming completion request.
func (c *Client) Send(ctx context.Context, req *openai.Request) (*openai.Response, error) {
	req.Stream = false

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.retrying.Do(httpReq)
	if err != nil {
		return nil, c.asBackendError(resp, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var out openai.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, protocolError("decode response: %v", err)
	}
	if out.Error != nil {
		return nil, protocolError("backend error in 200 body: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, protocolError("response has no choices")
	}
	return &out, nil
}

// Stream issues a streaming completion request. Retries only happen before
// any frame has been delivered; once the channel carries data the stream is
// never replayed. The channel closes when the stream ends and carries at
// most one trailing error chunk.
func (c *Client) Stream(ctx context.Context, req *openai.Request) (<-chan openai.StreamChunk, error) {
	req.Stream = true

	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := c.newRequest(streamCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		cancel()
		return nil, c.asBackendError(resp, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp)
	}

	out := make(chan openai.StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close()

		// Cancel the request when the backend stalls between chunks.
		watchdog := time.AfterFunc(interChunkTimeout, cancel)
		defer watchdog.Stop()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			watchdog.Reset(interChunkTimeout)

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var frame openai.StreamResponse
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				// Skip malformed keepalive noise rather than
				// killing the stream.
				continue
			}
			if frame.Error != nil {
				select {
				case out <- openai.StreamChunk{Err: protocolError("backend stream error: %s", frame.Error.Message)}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case out <- openai.StreamChunk{Response: &frame}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if streamCtx.Err() != nil && ctx.Err() == nil {
				err = errors.New("stream stalled: no data within inter-chunk timeout")
			}
			if ctx.Err() == nil {
				select {
				case out <- openai.StreamChunk{Err: networkError(err)}:
				case <-ctx.Done():
				}
			}
		}
	}()

	return out, nil
}

// TestConnection issues a one-token probe to verify the credential and
// endpoint at startup.
func (c *Client) TestConnection(ctx context.Context, model string) error {
	req := &openai.Request{
		Model:     model,
		Messages:  []openai.Message{{Role: openai.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	}
	_, err := c.Send(ctx, req)
	return err
}

// asBackendError converts an httpclient failure into the backend taxonomy.
func (c *Client) asBackendError(resp *http.Response, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}

	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) {
		if resp != nil {
			return c.errorFromResponse(resp)
		}
		if retryErr.StatusCode > 0 {
			return statusError(retryErr.StatusCode, "retries exhausted", 0)
		}
		return networkError(err)
	}
	return networkError(err)
}

// errorFromResponse drains a non-200 response into a typed error. The raw
// body is parsed for a message but never propagated verbatim.
func (c *Client) errorFromResponse(resp *http.Response) *Error {
	defer resp.Body.Close()

	message := http.StatusText(resp.StatusCode)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	if err == nil && len(body) > 0 {
		var envelope struct {
			Error *openai.APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
	}

	info := httpclient.ParseRetryHeaders(resp.Header)
	return statusError(resp.StatusCode, message, info.RetryAfter)
}
