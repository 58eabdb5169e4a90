package llmutils_test

import (
	"strings"
	"testing"

	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_CleanJSON(t *testing.T) {
	t.Parallel()
	tcases := []struct {
		in  string
		exp string
	}{
		{"\n```json\n\n{\"phoneNumber\": \"+14158586273\"}\n\n```\n\n", `{"phoneNumber": "+14158586273"}`},
		{"Here you go:\n```json\n\n[{\"a\": 2}]\n```\n\n", `[{"a": 2}]`},
		{`{"a":2,"b":3}`, `{"a":2,"b":3}`},
		{"no json here", "no json here"},
		{"", ""},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, string(llmutils.CleanJSON([]byte(tc.in))), "input: %q", tc.in)
	}
}

func Test_BackticksJSON(t *testing.T) {
	t.Parallel()
	wrapped := llmutils.BackticksJSON(`{"a": 2}` + "\n")
	assert.Equal(t, "\n```json\n{\"a\": 2}\n```\n", wrapped)
}

func Test_EnsureEndsWithNewline(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline(""))
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline("  \n"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("Hello"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("  Hello\n\n\n"))
}

func Test_JSONIndent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "{\n\t\"name\": \"John\",\n\t\"age\": 30\n}", llmutils.JSONIndent(`{"name":"John","age":30}`))
	assert.Equal(t, "6", llmutils.JSONIndent("6"))
	assert.Equal(t, "not json", llmutils.JSONIndent("not json"))
}

type person struct {
	Name string `json:"name" yaml:"name"`
	Age  int    `json:"age" yaml:"age"`
}

func Test_ToJSON(t *testing.T) {
	t.Parallel()
	p := person{Name: "John", Age: 30}
	assert.Equal(t, `{"name":"John","age":30}`, llmutils.ToJSON(p))
	assert.Equal(t, "{\n\t\"name\": \"John\",\n\t\"age\": 30\n}", llmutils.ToJSONIndent(p))
	assert.Equal(t, "name: John\nage: 30\n", llmutils.ToYAML(p))
}

func Test_CountContentSize(t *testing.T) {
	t.Parallel()
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "Hello"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "multiply", Arguments: "{}"}}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "1", Name: "multiply", Content: "6"}),
	}
	// human+Hello, ai+1+function+multiply+{}, tool+1+multiply+6
	assert.Equal(t, uint64(5+5+2+1+8+8+2+4+1+8+1), llmutils.CountMessagesContentSize(msgs))

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "Hello world"},
		},
	}
	assert.Equal(t, uint64(11), llmutils.CountResponseContentSize(resp))
	assert.Equal(t, uint64(0), llmutils.CountResponseContentSize(nil))
}

func Test_CountTokens(t *testing.T) {
	t.Parallel()
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{GenerationInfo: map[string]any{"InputTokens": int64(10), "OutputTokens": int64(5), "TotalTokens": int64(15)}},
			{GenerationInfo: map[string]any{"InputTokens": int64(1), "OutputTokens": int64(2), "TotalTokens": int64(3)}},
		},
	}
	in, out, total := llmutils.CountTokens(resp)
	assert.Equal(t, int64(11), in)
	assert.Equal(t, int64(7), out)
	assert.Equal(t, int64(18), total)
}

func TestPrintMessages(t *testing.T) {
	t.Parallel()
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "Please be polite."),
		llms.MessageFromTextParts(llms.RoleHuman, "Is +1-555-123-4567 a valid phone number?"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "numverify", Arguments: `{"phoneNumber":"+15551234567"}`}}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "1", Name: "numverify", Content: `{"valid":false}`}),
	}
	var buf strings.Builder
	llmutils.PrintMessages(&buf, msgs)
	assert.Equal(t, `SYSTEM: Please be polite.
HUMAN: Is +1-555-123-4567 a valid phone number?
AI: ToolCall ID=1, Type=function, Func=numverify({"phoneNumber":"+15551234567"})
TOOL: ToolCallResponse ID=1, Name=numverify, Content={"valid":false}
`, buf.String())
}
