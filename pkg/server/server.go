// Package server is the HTTP front: loopback listener, the /v1/messages
// route with SSE streaming, health endpoint, port probing and graceful
// shutdown.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/78Spinoza/claudeproxy/pkg/adapter"
	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
)

const (
	readTimeout     = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// HealthBody is the sentinel served on /healthz; the port probe matches on
// Service to recognise an earlier instance.
type HealthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Adapter string `json:"adapter"`
	Version string `json:"version"`
}

type Server struct {
	addr    string
	adapter adapter.Adapter
	version string
	http    *http.Server
}

func New(addr string, ad adapter.Adapter, version string) *Server {
	s := &Server{addr: addr, adapter: ad, version: version}
	s.http = &http.Server{
		Addr:        addr,
		Handler:     s.Router(),
		ReadTimeout: readTimeout,
		// No write timeout: streamed responses legitimately outlive any
		// fixed bound. The request context still cancels on disconnect.
		WriteTimeout: 0,
		IdleTimeout:  idleTimeout,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)

	r.Post("/v1/messages", s.handleMessages)
	r.HandleFunc("/v1/*", s.handleNotFound)
	r.Get("/healthz", s.handleHealth)

	return r
}

// Start probes the port, binds, and serves until ctx is cancelled. Shutdown
// drains in-flight requests for up to 10 seconds.
func (s *Server) Start(ctx context.Context) error {
	if err := ProbePort(s.addr); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("proxy server listening", "address", s.addr, "adapter", s.adapter.Name())
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutting down proxy server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthBody{
		Status:  "ok",
		Service: "claudeproxy",
		Adapter: s.adapter.Name(),
		Version: s.version,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorBody(w, http.StatusNotFound, "not_found_error",
		fmt.Sprintf("%s %s is not supported by this proxy", r.Method, r.URL.Path))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	// Incoming credentials are deliberately ignored; the real one lives in
	// the backend client.
	var req anthropic.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request_error",
			fmt.Sprintf("request body is not valid JSON: %v", err))
		return
	}

	if req.Stream {
		s.streamMessages(w, r, &req)
		return
	}

	msg, err := s.adapter.Handle(r.Context(), &req)
	if err != nil {
		renderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msg)
}

func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, req *anthropic.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		renderError(w, fmt.Errorf("response writer does not support streaming"))
		return
	}

	events, err := s.adapter.HandleStream(r.Context(), req)
	if err != nil {
		renderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeEvent(w, flusher, ev); err != nil {
			// Client went away; the request context cancels the
			// backend chain.
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev anthropic.StreamEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// loggingMiddleware records method, path and duration. It deliberately does
// not wrap the ResponseWriter: wrapping would hide the Flusher interface the
// SSE path needs. Bodies are never logged.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request handled",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
