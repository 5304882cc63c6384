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

const webSearchUnavailable = "web search unavailable"

// Groq adds web-search interception on top of the shared pipeline: a
// web_search tool call from the model is answered by a side-channel call to
// the search-capable model instead of going back to the client.
type Groq struct {
	core
}

func NewGroq(reg *registry.Registry, sel *selector.Selector, client *backend.Client) *Groq {
	return &Groq{core: core{reg: reg, sel: sel, client: client}}
}

func (a *Groq) Name() string { return "groq" }

func (a *Groq) Handle(ctx context.Context, req *anthropic.Request) (*anthropic.MessageResponse, error) {
	breq, _, err := a.translate(req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Send(ctx, breq)
	if err != nil {
		return nil, err
	}

	if msg := a.interceptWebSearch(ctx, resp); msg != nil {
		msg.Model = req.Model
		return msg, nil
	}

	result, err := transform.ToClientFinal(resp, a.reg, req.Model)
	if err != nil {
		return nil, err
	}
	if result.ParseError {
		slog.Warn("tool call arguments never parsed; degraded to text")
	}
	return result.Message, nil
}

func (a *Groq) HandleStream(ctx context.Context, req *anthropic.Request) (<-chan anthropic.StreamEvent, error) {
	dec := a.sel.Select(req.Model, selector.UserText(req.Messages), selector.ToolNames(req.Tools))

	// The search model does not stream tool traffic; answer the streaming
	// request from the buffered result instead.
	if dec.WebSearchRequired {
		msg, err := a.Handle(ctx, req)
		if err != nil {
			return nil, err
		}
		out := make(chan anthropic.StreamEvent)
		go func() {
			defer close(out)
			emitAll(ctx, out, transform.EventsFromMessage(msg))
		}()
		return out, nil
	}

	if a.sel.Profile().WebSearch == "" {
		return a.handleStream(ctx, req)
	}

	// The regular model is still offered web_search; a call it emits
	// mid-stream gets intercepted the same way the buffered path does.
	filter := &webSearchStreamFilter{a: a, ctx: ctx}
	return a.handleStreamRewritten(ctx, req, filter.rewrite)
}

// interceptWebSearch answers a model-emitted web_search call with a
// secondary non-streaming request. Returns nil when the response carries no
// such call; translation then proceeds normally.
func (a *Groq) interceptWebSearch(ctx context.Context, resp *openai.Response) *anthropic.MessageResponse {
	profile := a.sel.Profile()
	if profile.WebSearch == "" || len(resp.Choices) == 0 {
		return nil
	}

	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if a.reg.CanonicalName(tc.Function.Name) != "web_search" {
			continue
		}
		args, ok := transform.ParseToolArguments(tc.Function.Arguments)
		if !ok {
			continue
		}
		query, _ := args["query"].(string)
		if query == "" {
			continue
		}

		toolUseID := transform.CallID(tc.ID)
		msg := &anthropic.MessageResponse{
			ID:         transform.MessageID(resp.ID),
			Type:       "message",
			Role:       anthropic.RoleAssistant,
			StopReason: anthropic.StopEndTurn,
		}
		if resp.Usage != nil {
			msg.Usage = anthropic.Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}
		}

		answer, err := a.runWebSearch(ctx, query)
		if err != nil {
			msg.Content = []anthropic.ContentBlock{
				anthropic.ToolResultBlock(toolUseID, webSearchUnavailable, true),
			}
			return msg
		}

		msg.Content = []anthropic.ContentBlock{
			anthropic.ToolResultBlock(toolUseID, answer, false),
		}
		return msg
	}
	return nil
}

// runWebSearch answers a query with a non-streaming request to the
// search-capable model.
func (a *Groq) runWebSearch(ctx context.Context, query string) (string, error) {
	profile := a.sel.Profile()
	slog.Debug("intercepting web_search call", "model", profile.WebSearch)

	secondary := &openai.Request{
		Model: profile.WebSearch,
		Messages: []openai.Message{{
			Role:    openai.RoleUser,
			Content: "Search the web for: " + query,
		}},
		MaxTokens: profile.MaxTokens,
	}
	resp, err := a.client.Send(ctx, secondary)
	if err != nil {
		slog.Warn("web search side call failed", "error", err)
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// webSearchStreamFilter rewrites a streamed web_search tool_use into the
// tool_result its side call produces. The tool_use block events are held
// back until the arguments are complete, then replaced in place; the
// finishing tool_use stop reason becomes end_turn since no tool call reaches
// the client.
type webSearchStreamFilter struct {
	a   *Groq
	ctx context.Context

	active      bool
	index       int
	callID      string
	payload     string
	intercepted bool
}

func (f *webSearchStreamFilter) rewrite(ev anthropic.StreamEvent) []anthropic.StreamEvent {
	switch data := ev.Data.(type) {
	case anthropic.ContentBlockStartEvent:
		if data.ContentBlock.Type == anthropic.BlockTypeToolUse && data.ContentBlock.Name == "web_search" {
			f.active = true
			f.index = data.Index
			f.callID = data.ContentBlock.ID
			f.payload = ""
			return nil
		}
	case anthropic.ContentBlockDeltaEvent:
		if f.active && data.Index == f.index {
			f.payload += data.Delta.PartialJSON
			return nil
		}
	case anthropic.ContentBlockStopEvent:
		if f.active && data.Index == f.index {
			f.active = false
			f.intercepted = true
			return f.resolve()
		}
	case anthropic.MessageDeltaEvent:
		if f.intercepted && data.Delta.StopReason == anthropic.StopToolUse {
			return []anthropic.StreamEvent{anthropic.NewMessageDelta(anthropic.StopEndTurn, data.Usage)}
		}
	}
	return []anthropic.StreamEvent{ev}
}

func (f *webSearchStreamFilter) resolve() []anthropic.StreamEvent {
	block := anthropic.ToolResultBlock(f.callID, webSearchUnavailable, true)
	if args, ok := transform.ParseToolArguments(f.payload); ok {
		if query, _ := args["query"].(string); query != "" {
			if answer, err := f.a.runWebSearch(f.ctx, query); err == nil {
				block = anthropic.ToolResultBlock(f.callID, answer, false)
			}
		}
	}
	return []anthropic.StreamEvent{
		anthropic.NewContentBlockStart(f.index, block),
		anthropic.NewContentBlockStop(f.index),
	}
}

var (
	_ Adapter = (*XAI)(nil)
	_ Adapter = (*Groq)(nil)
)
