package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/78Spinoza/claudeproxy/pkg/openai"
)

func okResponse(content, finish string) openai.Response {
	return openai.Response{
		ID: "chatcmpl-1",
		Choices: []openai.Choice{{
			Message:      openai.Message{Role: openai.RoleAssistant, Content: content},
			FinishReason: finish,
		}},
		Usage: &openai.Usage{PromptTokens: 3, CompletionTokens: 1},
	}
}

func TestSendSuccess(t *testing.T) {
	var gotAuth string
	var gotBody openai.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(okResponse("hi", openai.FinishStop))
	}))
	defer server.Close()

	c := New("xai", server.URL, "test-key")
	resp, err := c.Send(context.Background(), &openai.Request{
		Model:    "grok-code-fast-1",
		Messages: []openai.Message{{Role: openai.RoleUser, Content: "Say hi."}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "grok-code-fast-1", gotBody.Model)
	assert.False(t, gotBody.Stream)
	assert.Equal(t, "hi", resp.Choices[0].Message.Content)
}

func TestSendAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer server.Close()

	c := New("xai", server.URL, "bad-key")
	_, err := c.Send(context.Background(), &openai.Request{Model: "m"})

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindAuth, be.Kind)
	assert.Equal(t, http.StatusUnauthorized, be.HTTPStatus)
	assert.False(t, be.Retryable)
}

func TestSendBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := New("xai", server.URL, "k")
	_, err := c.Send(context.Background(), &openai.Request{Model: "m"})

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindBadRequest, be.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

// Two 429s with Retry-After: 2 then success: one client-visible success,
// at least four seconds elapsed, no more than three retries.
func TestSendRetriesRateLimitWithRetryAfter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry timing test in short mode")
	}

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(okResponse("done", openai.FinishStop))
	}))
	defer server.Close()

	c := New("groq", server.URL, "k")

	start := time.Now()
	resp, err := c.Send(context.Background(), &openai.Request{Model: "m"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "done", resp.Choices[0].Message.Content)
	assert.GreaterOrEqual(t, elapsed, 4*time.Second)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendRateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New("groq", server.URL, "k")
	_, err := c.Send(context.Background(), &openai.Request{Model: "m"})

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindRateLimited, be.Kind)
	assert.True(t, be.Retryable)
	assert.Equal(t, time.Second, be.RetryAfter)
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
}

func TestSendEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	}))
	defer server.Close()

	c := New("xai", server.URL, "k")
	_, err := c.Send(context.Background(), &openai.Request{Model: "m"})

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindProtocol, be.Kind)
}

func TestStreamDecodesFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"he\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"llo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c := New("xai", server.URL, "k")
	ch, err := c.Stream(context.Background(), &openai.Request{Model: "m"})
	require.NoError(t, err)

	var text string
	var finish string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		for _, choice := range chunk.Response.Choices {
			text += choice.Delta.Content
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
	}
	assert.Equal(t, "hello", text)
	assert.Equal(t, openai.FinishStop, finish)
}

func TestStreamErrorBeforeFirstByte(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New("xai", server.URL, "k")
	_, err := c.Stream(context.Background(), &openai.Request{Model: "m"})

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindAuth, be.Kind)
}

func TestStreamCancelledByCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New("xai", server.URL, "k")
	ch, err := c.Stream(ctx, &openai.Request{Model: "m"})
	require.NoError(t, err)

	chunk := <-ch
	require.NoError(t, chunk.Err)
	cancel()

	for range ch {
	}
}

func TestTestConnectionProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1, req.MaxTokens)
		json.NewEncoder(w).Encode(okResponse("p", openai.FinishStop))
	}))
	defer server.Close()

	c := New("xai", server.URL, "k")
	assert.NoError(t, c.TestConnection(context.Background(), "grok-code-fast-1"))

	bad := New("xai", "http://127.0.0.1:1", "k")
	err := bad.TestConnection(context.Background(), "grok-code-fast-1")
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindNetwork, be.Kind)
	assert.False(t, errors.Is(err, context.Canceled))
}

// A consumer that cancels without draining must not strand the stream
// goroutine on its trailing error send; the channel still closes.
func TestStreamErrorSendHonoursCancelledConsumer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())

	c := New("xai", server.URL, "k")
	ch, err := c.Stream(ctx, &openai.Request{
		Model:    "m",
		Messages: []openai.Message{{Role: openai.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	cancel()

	// No receiver while the goroutine observes the cancellation. It must
	// drop the error chunk and close rather than sit in the send.
	time.Sleep(200 * time.Millisecond)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected a closed channel, got a pending chunk")
	case <-time.After(2 * time.Second):
		t.Fatal("stream channel neither closed nor delivering")
	}
}
