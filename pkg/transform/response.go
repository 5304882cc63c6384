package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/kaptinlin/jsonrepair"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
	"github.com/78Spinoza/claudeproxy/pkg/openai"
	"github.com/78Spinoza/claudeproxy/pkg/registry"
)

// CallID derives the stable client-visible id for a backend tool call. The
// same backend id always maps to the same client id, so retries keep their
// identity.
func CallID(backendID string) string {
	sum := sha256.Sum256([]byte(backendID))
	return "call_" + hex.EncodeToString(sum[:8])
}

// MessageID derives the client-visible message id from the backend response
// id.
func MessageID(backendID string) string {
	sum := sha256.Sum256([]byte(backendID))
	return "msg_" + hex.EncodeToString(sum[:8])
}

// MapFinishReason translates a backend finish reason into the client's
// stop_reason vocabulary. Unknown reasons collapse to end_turn.
func MapFinishReason(reason string) string {
	switch reason {
	case openai.FinishStop:
		return anthropic.StopEndTurn
	case openai.FinishLength:
		return anthropic.StopMaxTokens
	case openai.FinishToolCalls:
		return anthropic.StopToolUse
	default:
		return anthropic.StopEndTurn
	}
}

// Result wraps a translated final response. ParseError records that at least
// one tool call carried argument JSON that never parsed; it stays internal
// and is only logged.
type Result struct {
	Message    *anthropic.MessageResponse
	ParseError bool
}

// ToClientFinal translates a complete backend response into the client
// schema. Tool-call arguments get a repair pass before parsing; arguments
// that still fail to parse degrade to a text block. Arguments that parse but
// fail registry validation are rewritten as a tool_use plus an is_error
// tool_result carrying the raw arguments, so the model can self-correct on
// the next turn.
func ToClientFinal(resp *openai.Response, reg *registry.Registry, clientModel string) (*Result, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("backend response has no choices")
	}
	choice := resp.Choices[0]

	result := &Result{Message: &anthropic.MessageResponse{
		ID:    MessageID(resp.ID),
		Type:  "message",
		Role:  anthropic.RoleAssistant,
		Model: clientModel,
	}}
	msg := result.Message

	if choice.Message.Content != "" {
		msg.Content = append(msg.Content, anthropic.TextBlock(choice.Message.Content))
	}

	for _, tc := range choice.Message.ToolCalls {
		id := CallID(tc.ID)

		args, ok := ParseToolArguments(tc.Function.Arguments)
		if !ok {
			msg.Content = append(msg.Content, anthropic.TextBlock(tc.Function.Arguments))
			result.ParseError = true
			continue
		}

		name, canonical, err := reg.CanonicalArgs(tc.Function.Name, args)
		if err != nil {
			if errors.Is(err, registry.ErrInvalidArgs) {
				msg.Content = append(msg.Content,
					anthropic.ToolUseBlock(id, name, nil),
					anthropic.ToolResultBlock(id, tc.Function.Arguments, true),
				)
				continue
			}
			return nil, err
		}
		msg.Content = append(msg.Content, anthropic.ToolUseBlock(id, name, canonical))
	}

	msg.StopReason = MapFinishReason(choice.FinishReason)
	if resp.Usage != nil {
		msg.Usage = anthropic.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return result, nil
}

// ParseToolArguments parses a tool-call argument string, giving malformed
// JSON a repair pass before giving up. An empty string is an empty object.
func ParseToolArguments(raw string) (map[string]any, bool) {
	if raw == "" {
		return map[string]any{}, true
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, true
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, false
	}
	return args, true
}

// EventsFromMessage expands a final message into the equivalent stream
// event sequence, for paths that compute the full response but must answer a
// streaming request.
func EventsFromMessage(msg *anthropic.MessageResponse) []anthropic.StreamEvent {
	start := *msg
	start.Content = []anthropic.ContentBlock{}
	start.StopReason = ""
	start.Usage = anthropic.Usage{}

	events := []anthropic.StreamEvent{anthropic.NewMessageStart(start)}
	for i, block := range msg.Content {
		switch block.Type {
		case anthropic.BlockTypeText:
			events = append(events,
				anthropic.NewContentBlockStart(i, anthropic.TextBlock("")),
				anthropic.NewTextDelta(i, block.Text),
				anthropic.NewContentBlockStop(i),
			)
		case anthropic.BlockTypeToolUse:
			open := anthropic.ToolUseBlock(block.ID, block.Name, nil)
			events = append(events, anthropic.NewContentBlockStart(i, open))
			if len(block.Input) > 0 {
				raw, err := json.Marshal(block.Input)
				if err == nil {
					events = append(events, anthropic.NewInputJSONDelta(i, string(raw)))
				}
			}
			events = append(events, anthropic.NewContentBlockStop(i))
		default:
			events = append(events,
				anthropic.NewContentBlockStart(i, block),
				anthropic.NewContentBlockStop(i),
			)
		}
	}
	events = append(events,
		anthropic.NewMessageDelta(msg.StopReason, msg.Usage),
		anthropic.NewMessageStop(),
	)
	return events
}
