package llm

import (
	"encoding/json"
	"testing"

	openailib "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOracle(t *testing.T) *OpenAIOracle {
	t.Helper()
	o, err := NewOpenAIOracle(&OpenAIConfig{APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)
	return o
}

func TestNewOpenAIOracleRequiresKey(t *testing.T) {
	_, err := NewOpenAIOracle(nil)
	require.Error(t, err)
	_, err = NewOpenAIOracle(&OpenAIConfig{Model: "m"})
	require.Error(t, err)
}

func TestBuildRequestMapsMessagesAndTools(t *testing.T) {
	o := testOracle(t)

	req := o.buildRequest(PlanRequest{
		SystemPrompt: "be helpful",
		Messages: []Message{
			{Role: RoleUser, Content: "question"},
			{
				Role:    RoleAssistant,
				Content: "calling a tool",
				ToolRequests: []ToolRequest{
					{Index: 0, ID: "call_abc", Name: "docs.search", Args: map[string]any{"query": "s3"}},
				},
			},
			{Role: RoleTool, Content: "result text", ToolCallID: "call_abc", Name: "docs.search"},
		},
		Tools: []ToolDef{
			{Name: "docs.search", Description: "search docs", Parameters: json.RawMessage(`{"type":"object"}`)},
			{Name: "docs.read", Description: "read a page"},
		},
	}, false)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, openailib.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be helpful", req.Messages[0].Content)

	// The assistant's tool request is surfaced in function-name form.
	asst := req.Messages[2]
	require.Len(t, asst.ToolCalls, 1)
	assert.Equal(t, "docs__search", asst.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"query":"s3"}`, asst.ToolCalls[0].Function.Arguments)

	toolMsg := req.Messages[3]
	assert.Equal(t, "call_abc", toolMsg.ToolCallID)
	assert.Equal(t, "docs__search", toolMsg.Name)

	require.Len(t, req.Tools, 2)
	assert.Equal(t, "docs__search", req.Tools[0].Function.Name)
	assert.NotNil(t, req.Tools[1].Function.Parameters,
		"tools without a schema get the empty-object schema")
}

func TestConvertToolCallNormalizesNames(t *testing.T) {
	tr := convertToolCall(2, openailib.ToolCall{
		ID:   "call_x",
		Type: openailib.ToolTypeFunction,
		Function: openailib.FunctionCall{
			Name:      "cfn__generate_template",
			Arguments: `{"description": "a vpc"}`,
		},
	})

	assert.Equal(t, 2, tr.Index)
	assert.Equal(t, "call_x", tr.ID)
	assert.Equal(t, "cfn.generate_template", tr.Name)
	assert.Equal(t, map[string]any{"description": "a vpc"}, tr.Args)
}

func TestConvertToolCallToleratesSloppyArguments(t *testing.T) {
	tr := convertToolCall(0, openailib.ToolCall{
		Function: openailib.FunctionCall{
			Name:      "docs__search",
			Arguments: "query: s3 lifecycle",
		},
	})
	assert.Equal(t, map[string]any{"query": "s3 lifecycle"}, tr.Args)
}
