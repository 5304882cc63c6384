// Package anthropic defines the client-facing wire schema: the Anthropic
// messages request/response bodies and the SSE event payloads the proxy emits.
package anthropic

import (
	"encoding/json"
	"fmt"
)

const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleSystem     = "system"
	RoleToolResult = "tool_result"
)

const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

const (
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
	StopToolUse   = "tool_use"
	StopError     = "error"
)

// Request is the body of POST /v1/messages as the client sends it.
// Unknown fields are ignored during decoding.
type Request struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	System      string            `json:"system,omitempty"`
	Tools       []ToolDeclaration `json:"tools,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature *float64          `json:"temperature,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

// Message is a single conversation turn. Content is either a plain string or
// an ordered list of typed blocks on the wire.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content holds either a plain string or a block list, mirroring the dual
// encoding the wire format allows.
type Content struct {
	Text   string
	Blocks []ContentBlock
	isList bool
}

// TextContent wraps a plain string.
func TextContent(s string) Content {
	return Content{Text: s}
}

// BlockContent wraps an explicit block list.
func BlockContent(blocks ...ContentBlock) Content {
	return Content{Blocks: blocks, isList: true}
}

// IsList reports whether the wire value was an array of blocks.
func (c Content) IsList() bool { return c.isList }

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		c.isList = false
		return json.Unmarshal(data, &c.Text)
	}
	c.isList = true
	return json.Unmarshal(data, &c.Blocks)
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.isList {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// ContentBlock is the tagged union of text, tool_use and tool_result blocks.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string   `json:"tool_use_id,omitempty"`
	Content   *Content `json:"content,omitempty"`
	IsError   bool     `json:"is_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: BlockTypeToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result content block with a plain-text body.
func ToolResultBlock(toolUseID, text string, isError bool) ContentBlock {
	c := TextContent(text)
	return ContentBlock{Type: BlockTypeToolResult, ToolUseID: toolUseID, Content: &c, IsError: isError}
}

// ResultText flattens a tool_result outcome body to plain text. Structured
// bodies are joined text blocks; anything else is serialised as JSON.
func (b ContentBlock) ResultText() string {
	if b.Content == nil {
		return ""
	}
	if !b.Content.isList {
		return b.Content.Text
	}
	out := ""
	for _, inner := range b.Content.Blocks {
		if inner.Type == BlockTypeText {
			if out != "" {
				out += "\n"
			}
			out += inner.Text
		}
	}
	if out == "" && len(b.Content.Blocks) > 0 {
		raw, err := json.Marshal(b.Content.Blocks)
		if err == nil {
			return string(raw)
		}
	}
	return out
}

// ToolDeclaration is a client-declared tool. The proxy never forwards these
// verbatim; the registry substitutes its own entries. Only the name matters
// for routing decisions.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// MessageResponse is the non-streaming success body returned to the client.
type MessageResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model,omitempty"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorResponse is the client-shaped error body.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorResponse builds the standard error envelope.
func NewErrorResponse(errType, message string) ErrorResponse {
	return ErrorResponse{Type: "error", Error: ErrorDetail{Type: errType, Message: message}}
}

// ValidateToolResults checks that every tool_result block references an
// earlier tool_use id within the same request.
func ValidateToolResults(messages []Message) error {
	seen := map[string]bool{}
	for _, m := range messages {
		for _, b := range m.Content.Blocks {
			switch b.Type {
			case BlockTypeToolUse:
				seen[b.ID] = true
			case BlockTypeToolResult:
				if !seen[b.ToolUseID] {
					return fmt.Errorf("tool_result references unknown tool_use id %q", b.ToolUseID)
				}
			}
		}
	}
	return nil
}
