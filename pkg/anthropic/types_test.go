package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentDecodesStringAndArray(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m))
	assert.False(t, m.Content.IsList())
	assert.Equal(t, "hello", m.Content.Text)

	require.NoError(t, json.Unmarshal([]byte(
		`{"role":"user","content":[{"type":"text","text":"a"},{"type":"tool_result","tool_use_id":"call_1","content":"out"}]}`), &m))
	require.True(t, m.Content.IsList())
	require.Len(t, m.Content.Blocks, 2)
	assert.Equal(t, BlockTypeText, m.Content.Blocks[0].Type)
	assert.Equal(t, "call_1", m.Content.Blocks[1].ToolUseID)
	assert.Equal(t, "out", m.Content.Blocks[1].ResultText())
}

func TestContentRoundTripsItsEncoding(t *testing.T) {
	plain, err := json.Marshal(Message{Role: RoleUser, Content: TextContent("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(plain))

	list, err := json.Marshal(Message{Role: RoleUser, Content: BlockContent(TextBlock("hi"))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[{"type":"text","text":"hi"}]}`, string(list))
}

func TestResultTextJoinsBlocks(t *testing.T) {
	body := BlockContent(TextBlock("one"), TextBlock("two"))
	block := ContentBlock{Type: BlockTypeToolResult, ToolUseID: "call_1", Content: &body}
	assert.Equal(t, "one\ntwo", block.ResultText())
}

func TestValidateToolResults(t *testing.T) {
	use := ToolUseBlock("call_1", "read_file", map[string]any{"file_path": "/a"})

	ok := []Message{
		{Role: RoleAssistant, Content: BlockContent(use)},
		{Role: RoleUser, Content: BlockContent(ToolResultBlock("call_1", "done", false))},
	}
	assert.NoError(t, ValidateToolResults(ok))

	orphan := []Message{
		{Role: RoleUser, Content: BlockContent(ToolResultBlock("call_9", "done", false))},
	}
	assert.Error(t, ValidateToolResults(orphan))

	// A result may not precede its tool_use.
	reversed := []Message{
		{Role: RoleUser, Content: BlockContent(ToolResultBlock("call_1", "done", false))},
		{Role: RoleAssistant, Content: BlockContent(use)},
	}
	assert.Error(t, ValidateToolResults(reversed))
}
