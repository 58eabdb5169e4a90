package callbacks_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/assistants"
	"github.com/effective-security/toolbind/callbacks"
	"github.com/effective-security/toolbind/mocks/mockllms"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/toolbind/tools/calculator"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeAssistant struct {
	name string
}

func (a *fakeAssistant) Name() string        { return a.name }
func (a *fakeAssistant) Description() string { return "fake " + a.name }

func newModel(t *testing.T) llms.Model {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("mock-model").AnyTimes()
	return m
}

// emit sends every notification once to cb.
func emit(t *testing.T, cb callbacks.Handler) {
	t.Helper()
	ctx := context.Background()
	ast := &fakeAssistant{name: "test-assistant"}
	tool := tools.Must(calculator.New())
	llm := newModel(t)

	req := &tools.Request{ID: "call_1", Tool: tool.Name(), Arguments: map[string]any{"a": 2, "b": 3}}
	ok := &tools.Result{ID: "call_1", Tool: tool.Name(), Output: "6"}
	failed := &tools.Result{ID: "call_1", Tool: tool.Name(), Error: &tools.Failure{Kind: tools.KindValidation, Message: `invalid arguments: validating root: required: missing properties: ["a"]`}}

	cb.OnAssistantStart(ctx, ast, "test input")
	cb.OnAssistantLLMCallStart(ctx, ast, llm, []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "test input")})
	cb.OnAssistantLLMCallEnd(ctx, ast, llm, &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				ToolCalls: []llms.ToolCall{{
					ID:           "call_1",
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: tool.Name(), Arguments: `{"a":2,"b":3}`},
				}},
				GenerationInfo: map[string]any{"InputTokens": int64(7), "OutputTokens": int64(3)},
			},
		},
	})
	cb.OnToolStart(ctx, tool, req)
	cb.OnToolEnd(ctx, tool, req, ok)
	cb.OnToolStart(ctx, tool, req)
	cb.OnToolError(ctx, tool, req, failed)
	cb.OnToolNotFound(ctx, &tools.Request{ID: "call_2", Tool: "divide"})
	cb.OnAssistantEnd(ctx, ast, "test input", &assistants.Response{
		Content:    "test output",
		Executions: []*assistants.Execution{{Result: ok}},
	})
	cb.OnAssistantError(ctx, ast, "test input", errors.New("test error"))
}

func TestPrinter(t *testing.T) {
	t.Parallel()

	t.Run("verbose", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		emit(t, callbacks.NewPrinter(&buf, callbacks.ModeVerbose))

		res := buf.String()
		assert.Contains(t, res, "Assistant Start: test-assistant\nInput: test input\n")
		assert.Contains(t, res, "LLM Call: test-assistant: mock-model model, 1 messages\n")
		assert.Contains(t, res, "HUMAN: test input")
		assert.Contains(t, res, "LLM Call End: test-assistant: mock-model model, 1 choices\n")
		assert.Contains(t, res, `ToolCall: call_1 (multiply), input: {"a":2,"b":3}`)
		assert.Contains(t, res, "Tool Start: multiply [call_1]\nInput: {\"a\":2,\"b\":3}\n")
		assert.Contains(t, res, "Tool End: multiply [call_1]\nOutput: 6\n")
		assert.Contains(t, res, "Tool Error: multiply [call_1]: ValidationError: invalid arguments: validating root: required: missing properties: [\"a\"]\n")
		assert.Contains(t, res, "Tool Not Found: divide\n")
		assert.Contains(t, res, "Assistant End: test-assistant, 1 tool calls\ntest output\n")
		assert.Contains(t, res, "Assistant Error: test-assistant: test error\n")
	})

	t.Run("default", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		emit(t, callbacks.NewPrinter(&buf, callbacks.ModeDefault))

		res := buf.String()
		assert.Contains(t, res, "Tool End: multiply [call_1]\n")
		assert.NotContains(t, res, "Output: 6")
		assert.NotContains(t, res, "HUMAN: test input")
		assert.NotContains(t, res, "test output")
	})
}

func TestPrinter_RawArguments(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)
	tool := tools.Must(calculator.New())
	ctx := context.Background()

	req := tools.NewRawRequest(tool.Name(), `{"a":2,"b":3}`)
	req.ID = "call_7"
	p.OnToolStart(ctx, tool, req)
	p.OnToolEnd(ctx, tool, req, &tools.Result{ID: "call_7", Tool: tool.Name(), Output: `{"product":6}`})

	res := buf.String()
	assert.Contains(t, res, "Tool Start: multiply [call_7]\nInput: {\"a\":2,\"b\":3}\n")
	assert.Contains(t, res, "Output: {\n\t\"product\": 6\n}\n")
}

func TestPackageLogger(t *testing.T) {
	var buf bytes.Buffer
	xlog.SetFormatter(xlog.NewStringFormatter(&buf))
	xlog.SetGlobalLogLevel(xlog.DEBUG)
	defer xlog.SetGlobalLogLevel(xlog.INFO)

	logger := xlog.NewPackageLogger("github.com/effective-security/toolbind", "callbacks_test")
	emit(t, callbacks.NewPackageLogger(logger))

	res := buf.String()
	for _, event := range []string{
		"assistant_start",
		"assistant_llm_call_start",
		"assistant_llm_call_end",
		"tool_start",
		"tool_end",
		"tool_error",
		"tool_not_found",
		"assistant_end",
		"assistant_error",
	} {
		assert.Contains(t, res, event)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	rec := callbacks.NewRecorder()
	emit(t, rec)

	stats := rec.Stats()
	assert.Equal(t, uint32(1), stats.AssistantCalls)
	assert.Equal(t, uint32(1), stats.AssistantCallsFailed)
	assert.Equal(t, uint32(1), stats.LLMCalls)
	assert.Equal(t, uint64(len("human")+len("test input")), stats.LLMBytesOut)
	assert.Equal(t, uint64(7), stats.LLMInputTokens)
	assert.Equal(t, uint64(3), stats.LLMOutputTokens)
	assert.Equal(t, uint32(2), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)

	assert.Len(t, rec.Events(), 9)
	starts := rec.EventsOf(callbacks.EventToolStart)
	require.Len(t, starts, 2)
	assert.Equal(t, "call_1", starts[0].Request.ID)

	errs := rec.EventsOf(callbacks.EventToolError)
	require.Len(t, errs, 1)
	assert.Equal(t, tools.KindValidation, errs[0].Result.Error.Kind)

	nf := rec.EventsOf(callbacks.EventToolNotFound)
	require.Len(t, nf, 1)
	assert.Equal(t, "divide", nf[0].Name)

	rec.Reset()
	assert.Empty(t, rec.Events())
	assert.Equal(t, callbacks.Stats{}, rec.Stats())
}

func TestFanout(t *testing.T) {
	t.Parallel()

	r1 := callbacks.NewRecorder()
	r2 := callbacks.NewRecorder()
	var buf bytes.Buffer
	f := callbacks.NewFanout(r1, callbacks.NewPrinter(&buf, callbacks.ModeDefault))
	f.Add(r2)

	emit(t, f)
	assert.Equal(t, r1.Stats(), r2.Stats())
	assert.Len(t, r2.Events(), 9)
	assert.Contains(t, buf.String(), "Tool Not Found: divide\n")
}
