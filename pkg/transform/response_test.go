package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
	"github.com/78Spinoza/claudeproxy/pkg/openai"
	"github.com/78Spinoza/claudeproxy/pkg/selector"
)

func backendResponse(content, finish string, calls ...openai.ToolCall) *openai.Response {
	return &openai.Response{
		ID: "chatcmpl-abc",
		Choices: []openai.Choice{{
			Message: openai.Message{
				Role:      openai.RoleAssistant,
				Content:   content,
				ToolCalls: calls,
			},
			FinishReason: finish,
		}},
		Usage: &openai.Usage{PromptTokens: 12, CompletionTokens: 5},
	}
}

func TestToClientFinalPlainText(t *testing.T) {
	result, err := ToClientFinal(backendResponse("hi", openai.FinishStop), testRegistry(t), "claude-3-5-sonnet")
	require.NoError(t, err)

	msg := result.Message
	require.Len(t, msg.Content, 1)
	assert.Equal(t, anthropic.TextBlock("hi"), msg.Content[0])
	assert.Equal(t, anthropic.StopEndTurn, msg.StopReason)
	assert.Equal(t, "claude-3-5-sonnet", msg.Model)
	assert.Equal(t, 12, msg.Usage.InputTokens)
	assert.Equal(t, 5, msg.Usage.OutputTokens)
	assert.False(t, result.ParseError)
}

func TestToClientFinalToolRoundTrip(t *testing.T) {
	resp := backendResponse("", openai.FinishToolCalls, openai.ToolCall{
		ID:       "c1",
		Type:     "function",
		Function: openai.FunctionCall{Name: "read_file", Arguments: `{"path":"/tmp/x"}`},
	})

	result, err := ToClientFinal(resp, testRegistry(t), "m")
	require.NoError(t, err)

	msg := result.Message
	require.Len(t, msg.Content, 1)
	block := msg.Content[0]
	assert.Equal(t, anthropic.BlockTypeToolUse, block.Type)
	assert.Equal(t, "read_file", block.Name)
	assert.Equal(t, map[string]any{"file_path": "/tmp/x"}, block.Input)
	assert.Equal(t, CallID("c1"), block.ID)
	assert.Equal(t, anthropic.StopToolUse, msg.StopReason)
}

func TestToClientFinalNormalizesTodoShorthand(t *testing.T) {
	resp := backendResponse("", openai.FinishToolCalls, openai.ToolCall{
		ID:       "c2",
		Function: openai.FunctionCall{Name: "manage_todos", Arguments: `{"tasks":["write spec","review"]}`},
	})

	result, err := ToClientFinal(resp, testRegistry(t), "m")
	require.NoError(t, err)

	block := result.Message.Content[0]
	assert.Equal(t, "manage_todos", block.Name)
	assert.Equal(t, []any{
		map[string]any{"content": "write spec", "status": "pending", "activeForm": "writing spec"},
		map[string]any{"content": "review", "status": "pending", "activeForm": "reviewing"},
	}, block.Input["todos"])
}

func TestToClientFinalRepairsMalformedArguments(t *testing.T) {
	resp := backendResponse("", openai.FinishToolCalls, openai.ToolCall{
		ID:       "c3",
		Function: openai.FunctionCall{Name: "read_file", Arguments: `{"file_path": "/tmp/x",}`},
	})

	result, err := ToClientFinal(resp, testRegistry(t), "m")
	require.NoError(t, err)

	block := result.Message.Content[0]
	assert.Equal(t, anthropic.BlockTypeToolUse, block.Type)
	assert.Equal(t, map[string]any{"file_path": "/tmp/x"}, block.Input)
	assert.False(t, result.ParseError)
}

func TestToClientFinalUnparseableArgumentsDegradeToText(t *testing.T) {
	resp := backendResponse("", openai.FinishToolCalls, openai.ToolCall{
		ID:       "c4",
		Function: openai.FunctionCall{Name: "read_file", Arguments: "not json at all ]]]["},
	})

	result, err := ToClientFinal(resp, testRegistry(t), "m")
	require.NoError(t, err)

	require.Len(t, result.Message.Content, 1)
	assert.Equal(t, anthropic.BlockTypeText, result.Message.Content[0].Type)
	assert.True(t, result.ParseError)
}

func TestToClientFinalInvalidArgsSelfHeal(t *testing.T) {
	resp := backendResponse("", openai.FinishToolCalls, openai.ToolCall{
		ID:       "c5",
		Function: openai.FunctionCall{Name: "edit_file", Arguments: `{"file_path":"/a"}`},
	})

	result, err := ToClientFinal(resp, testRegistry(t), "m")
	require.NoError(t, err)

	require.Len(t, result.Message.Content, 2)
	use := result.Message.Content[0]
	heal := result.Message.Content[1]

	assert.Equal(t, anthropic.BlockTypeToolUse, use.Type)
	assert.Equal(t, "edit_file", use.Name)
	assert.Equal(t, anthropic.BlockTypeToolResult, heal.Type)
	assert.Equal(t, use.ID, heal.ToolUseID)
	assert.True(t, heal.IsError)
	assert.Equal(t, `{"file_path":"/a"}`, heal.ResultText())
}

func TestToClientFinalNoChoices(t *testing.T) {
	_, err := ToClientFinal(&openai.Response{ID: "x"}, testRegistry(t), "m")
	assert.Error(t, err)
}

func TestMapFinishReason(t *testing.T) {
	tests := map[string]string{
		"stop":       anthropic.StopEndTurn,
		"length":     anthropic.StopMaxTokens,
		"tool_calls": anthropic.StopToolUse,
		"weird":      anthropic.StopEndTurn,
		"":           anthropic.StopEndTurn,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapFinishReason(in), "input %q", in)
	}
}

func TestCallIDStable(t *testing.T) {
	a := CallID("backend-id-1")
	b := CallID("backend-id-1")
	c := CallID("backend-id-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^call_[0-9a-f]{16}$`, a)
}

func TestEventsFromMessage(t *testing.T) {
	msg := &anthropic.MessageResponse{
		ID:   "msg_1",
		Type: "message",
		Role: anthropic.RoleAssistant,
		Content: []anthropic.ContentBlock{
			anthropic.TextBlock("ok"),
			anthropic.ToolUseBlock("call_x", "read_file", map[string]any{"file_path": "/a"}),
		},
		StopReason: anthropic.StopToolUse,
		Usage:      anthropic.Usage{InputTokens: 1, OutputTokens: 2},
	}

	events := EventsFromMessage(msg)

	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{
		anthropic.EventMessageStart,
		anthropic.EventContentBlockStart,
		anthropic.EventContentBlockDelta,
		anthropic.EventContentBlockStop,
		anthropic.EventContentBlockStart,
		anthropic.EventContentBlockDelta,
		anthropic.EventContentBlockStop,
		anthropic.EventMessageDelta,
		anthropic.EventMessageStop,
	}, names)

	last := events[len(events)-2].Data.(anthropic.MessageDeltaEvent)
	assert.Equal(t, anthropic.StopToolUse, last.Delta.StopReason)
	assert.Equal(t, 2, last.Usage.OutputTokens)
}

// Assistant text translated out of a backend response must translate back
// into the backend schema unchanged when the client replays it on the next
// turn.
func TestAssistantTextSurvivesRoundTrip(t *testing.T) {
	reg := testRegistry(t)

	result, err := ToClientFinal(backendResponse("hello there\nsecond line", openai.FinishStop), reg, "claude-3-5-sonnet")
	require.NoError(t, err)

	followup := &anthropic.Request{
		Model: "claude-3-5-sonnet",
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: anthropic.TextContent("say it")},
			{Role: anthropic.RoleAssistant, Content: anthropic.BlockContent(result.Message.Content...)},
		},
		MaxTokens: 16,
	}
	out, err := ToBackend(followup, reg, selector.XAIProfile(), testDecision("m"))
	require.NoError(t, err)

	require.Len(t, out.Messages, 2)
	assert.Equal(t, openai.RoleAssistant, out.Messages[1].Role)
	assert.Equal(t, "hello there\nsecond line", out.Messages[1].Content)
	assert.Empty(t, out.Messages[1].ToolCalls)
}
