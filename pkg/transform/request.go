// Package transform converts between the client's Anthropic-style messages
// schema and the backend's chat-completions schema, in both directions and
// for both whole responses and streamed deltas. Everything here is pure; the
// registry and selector inputs are immutable.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
	"github.com/78Spinoza/claudeproxy/pkg/openai"
	"github.com/78Spinoza/claudeproxy/pkg/registry"
	"github.com/78Spinoza/claudeproxy/pkg/selector"
)

// RequestError marks client input the proxy cannot translate. The server
// renders it as HTTP 400.
type RequestError struct {
	msg string
}

func (e *RequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{msg: fmt.Sprintf(format, args...)}
}

// ToBackend translates a client request into the backend schema: the system
// prompt is promoted to a leading system message, text blocks join with
// newlines, tool_use blocks become tool_calls, tool_result blocks become
// role=tool messages, and the client's declared tools are replaced with the
// registry's entries.
func ToBackend(req *anthropic.Request, reg *registry.Registry, profile selector.Profile, dec selector.Decision) (*openai.Request, error) {
	if len(req.Messages) == 0 {
		return nil, badRequest("messages must not be empty")
	}
	if req.MaxTokens <= 0 {
		return nil, badRequest("max_tokens must be a positive integer")
	}
	if err := anthropic.ValidateToolResults(req.Messages); err != nil {
		return nil, badRequest("%v", err)
	}

	out := &openai.Request{
		Model:       dec.Model,
		MaxTokens:   min(req.MaxTokens, profile.MaxTokens),
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.Message{
			Role:    openai.RoleSystem,
			Content: req.System,
		})
	}

	for i, turn := range req.Messages {
		switch turn.Role {
		case anthropic.RoleSystem:
			out.Messages = append(out.Messages, openai.Message{
				Role:    openai.RoleSystem,
				Content: joinedText(turn.Content),
			})

		case anthropic.RoleAssistant:
			msg := openai.Message{Role: openai.RoleAssistant, Content: joinedText(turn.Content)}
			for _, block := range turn.Content.Blocks {
				if block.Type != anthropic.BlockTypeToolUse {
					continue
				}
				args, err := compactJSON(block.Input)
				if err != nil {
					return nil, badRequest("message %d: tool_use %s: %v", i, block.ID, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       block.ID,
					Type:     "function",
					Function: openai.FunctionCall{Name: block.Name, Arguments: args},
				})
			}
			if msg.Content != "" || len(msg.ToolCalls) > 0 {
				out.Messages = append(out.Messages, msg)
			}

		case anthropic.RoleUser, anthropic.RoleToolResult:
			// Tool results answer the preceding assistant turn, so
			// they go out before this turn's user text.
			for _, block := range turn.Content.Blocks {
				if block.Type != anthropic.BlockTypeToolResult {
					continue
				}
				out.Messages = append(out.Messages, openai.Message{
					Role:       openai.RoleTool,
					ToolCallID: block.ToolUseID,
					Content:    block.ResultText(),
				})
			}
			if text := joinedText(turn.Content); text != "" {
				out.Messages = append(out.Messages, openai.Message{
					Role:    openai.RoleUser,
					Content: text,
				})
			}

		default:
			return nil, badRequest("message %d: unknown role %q", i, turn.Role)
		}
	}

	if len(req.Tools) > 0 && dec.AttachTools {
		out.Tools = registryTools(reg)
		out.ToolChoice = "auto"
	}

	if profile.SupportsReasoningEffort && dec.Effort != selector.EffortNone {
		out.ReasoningEffort = string(dec.Effort)
	}

	return out, nil
}

// joinedText concatenates a turn's text, whether the content came as a plain
// string or a block list, joining blocks with single newlines.
func joinedText(content anthropic.Content) string {
	if !content.IsList() {
		return content.Text
	}
	var parts []string
	for _, block := range content.Blocks {
		if block.Type == anthropic.BlockTypeText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func compactJSON(input map[string]any) (string, error) {
	if input == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("arguments not serialisable: %w", err)
	}
	return string(raw), nil
}

func registryTools(reg *registry.Registry) []openai.Tool {
	entries := reg.Tools()
	tools := make([]openai.Tool, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, openai.Tool{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        e.Name,
				Description: e.Description,
				Parameters:  e.Parameters,
			},
		})
	}
	return tools
}
