// Package adapter composes the registry, selector, transformer and backend
// client for one specific backend, and absorbs that backend's quirks.
package adapter

import (
	"context"
	"log/slog"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
	"github.com/78Spinoza/claudeproxy/pkg/backend"
	"github.com/78Spinoza/claudeproxy/pkg/openai"
	"github.com/78Spinoza/claudeproxy/pkg/registry"
	"github.com/78Spinoza/claudeproxy/pkg/selector"
	"github.com/78Spinoza/claudeproxy/pkg/transform"
)

// Adapter is the single surface the server calls into.
type Adapter interface {
	Name() string
	Handle(ctx context.Context, req *anthropic.Request) (*anthropic.MessageResponse, error)
	HandleStream(ctx context.Context, req *anthropic.Request) (<-chan anthropic.StreamEvent, error)
}

// core is the translation pipeline shared by all adapters.
type core struct {
	reg    *registry.Registry
	sel    *selector.Selector
	client *backend.Client
}

func (c *core) translate(req *anthropic.Request) (*openai.Request, selector.Decision, error) {
	dec := c.sel.Select(req.Model, selector.UserText(req.Messages), selector.ToolNames(req.Tools))
	breq, err := transform.ToBackend(req, c.reg, c.sel.Profile(), dec)
	return breq, dec, err
}

func (c *core) handle(ctx context.Context, req *anthropic.Request) (*anthropic.MessageResponse, error) {
	breq, dec, err := c.translate(req)
	if err != nil {
		return nil, err
	}

	slog.Debug("forwarding request", "model", dec.Model, "effort", string(dec.Effort), "stream", false)

	resp, err := c.client.Send(ctx, breq)
	if err != nil {
		return nil, err
	}

	result, err := transform.ToClientFinal(resp, c.reg, req.Model)
	if err != nil {
		return nil, err
	}
	if result.ParseError {
		slog.Warn("tool call arguments never parsed; degraded to text")
	}
	return result.Message, nil
}

// eventRewriter lets an adapter rewrite translated events before they reach
// the client; one event may expand to several or vanish. nil passes through.
type eventRewriter func(anthropic.StreamEvent) []anthropic.StreamEvent

func (c *core) handleStream(ctx context.Context, req *anthropic.Request) (<-chan anthropic.StreamEvent, error) {
	return c.handleStreamRewritten(ctx, req, nil)
}

func (c *core) handleStreamRewritten(ctx context.Context, req *anthropic.Request, rewrite eventRewriter) (<-chan anthropic.StreamEvent, error) {
	breq, dec, err := c.translate(req)
	if err != nil {
		return nil, err
	}

	slog.Debug("forwarding request", "model", dec.Model, "effort", string(dec.Effort), "stream", true)

	chunks, err := c.client.Stream(ctx, breq)
	if err != nil {
		return nil, err
	}

	out := make(chan anthropic.StreamEvent)
	go func() {
		defer close(out)

		emit := func(events []anthropic.StreamEvent) bool {
			if rewrite != nil {
				events = rewriteAll(rewrite, events)
			}
			return emitAll(ctx, out, events)
		}

		state := transform.NewStreamState(c.reg, req.Model)
		for chunk := range chunks {
			if chunk.Err != nil {
				slog.Warn("backend stream failed mid-flight", "error", chunk.Err)
				emit(state.Fail())
				return
			}
			if !emit(state.Push(chunk.Response)) {
				return
			}
		}
		if !state.Finished() {
			emit(state.Fail())
		}
	}()
	return out, nil
}

func rewriteAll(rewrite eventRewriter, events []anthropic.StreamEvent) []anthropic.StreamEvent {
	var out []anthropic.StreamEvent
	for _, ev := range events {
		out = append(out, rewrite(ev)...)
	}
	return out
}

func emitAll(ctx context.Context, out chan<- anthropic.StreamEvent, events []anthropic.StreamEvent) bool {
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
