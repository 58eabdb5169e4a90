package assistants_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/assistants"
	"github.com/effective-security/toolbind/callbacks"
	"github.com/effective-security/toolbind/mocks/mockllms"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/toolbind/tools/calculator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type generateFunc func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error)

func newModel(t *testing.T) *mockllms.MockModel {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("mock-model").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderGoogleAI).AnyTimes()
	return m
}

func newRegistry(t *testing.T, cb tools.Callback) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(cb, tools.Must(calculator.New()))
	require.NoError(t, err)
	return reg
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "tool_calls",
				ToolCalls:  calls,
			},
		},
	}
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    content,
				StopReason: "stop",
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(5),
				},
			},
		},
	}
}

func multiplyCall(id, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      calculator.ToolName,
			Arguments: args,
		},
	}
}

func TestToolDefinitions(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, nil)
	a := assistants.NewAssistant(newModel(t), reg)
	assert.Equal(t, "Tool Assistant", a.Name())
	assert.NotEmpty(t, a.Description())

	defs := a.ToolDefinitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	require.NotNil(t, defs[0].Function)
	assert.Equal(t, calculator.ToolName, defs[0].Function.Name)
	assert.Equal(t, []string{"a", "b"}, defs[0].Function.Parameters.Required)

	a.WithName("calc").WithDescription("calculator")
	assert.Equal(t, "calc", a.Name())
	assert.Equal(t, "calculator", a.Description())
}

func TestRun_SingleRound(t *testing.T) {
	t.Parallel()

	rec := callbacks.NewRecorder()
	m := newModel(t)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(generateFunc(func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, messages, 1)
			assert.Equal(t, llms.RoleHuman, messages[0].Role)
			assert.Equal(t, "What is 2 times 3?", messages[0].GetContent())

			opts := llms.NewCallOptions(llms.CallOptions{}, options...)
			require.Len(t, opts.Tools, 1)
			assert.Equal(t, calculator.ToolName, opts.Tools[0].Function.Name)
			assert.Equal(t, 0.0, opts.Temperature)
			return toolCallResponse(multiplyCall("call_1", `{"a":2,"b":3}`)), nil
		})).Times(1)

	a := assistants.NewAssistant(m, newRegistry(t, rec), assistants.WithCallback(rec), assistants.WithTemperature(0))
	resp, err := a.Run(context.Background(), "What is 2 times 3?")
	require.NoError(t, err)

	require.Len(t, resp.Executions, 1)
	ex := resp.Executions[0]
	assert.Equal(t, "call_1", ex.Call.ID)
	require.True(t, ex.Result.OK())
	assert.Equal(t, "call_1", ex.Result.ID)
	assert.Equal(t, "6", ex.Result.Output)
	assert.Empty(t, resp.Content)

	require.Len(t, resp.Messages, 3)
	assert.Equal(t, llms.RoleAI, resp.Messages[1].Role)
	assert.Equal(t, llms.RoleTool, resp.Messages[2].Role)
	part, ok := resp.Messages[2].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", part.ToolCallID)
	assert.Equal(t, "6", part.Content)

	stats := rec.Stats()
	assert.Equal(t, uint32(1), stats.AssistantCalls)
	assert.Equal(t, uint32(1), stats.LLMCalls)
	assert.Equal(t, uint32(1), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Len(t, rec.EventsOf(callbacks.EventAssistantEnd), 1)
}

func TestRun_FollowUp(t *testing.T) {
	t.Parallel()

	rec := callbacks.NewRecorder()
	m := newModel(t)
	var toolCallID string
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolCallResponse(multiplyCall("", `{"a":1.5,"b":4}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(generateFunc(func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, messages, 4)
				assert.Equal(t, llms.RoleSystem, messages[0].Role)
				last := messages[3]
				assert.Equal(t, llms.RoleTool, last.Role)
				part, ok := last.Parts[0].(llms.ToolCallResponse)
				require.True(t, ok)
				toolCallID = part.ToolCallID
				assert.Equal(t, calculator.ToolName, part.Name)
				assert.Equal(t, "6", part.Content)
				return textResponse("The product is 6."), nil
			})),
	)

	a := assistants.NewAssistant(m, newRegistry(t, rec), assistants.WithCallback(rec)).
		WithSystemPrompt("You are a calculator.")
	resp, err := a.Run(context.Background(), "What is 1.5 times 4?", assistants.WithFollowUp(true))
	require.NoError(t, err)
	assert.Equal(t, "The product is 6.", resp.Content)
	require.Len(t, resp.Executions, 1)
	assert.NotEmpty(t, toolCallID)
	assert.Equal(t, toolCallID, resp.Executions[0].Call.ID)
	assert.Equal(t, toolCallID, resp.Executions[0].Result.ID)
	assert.Len(t, resp.Messages, 5)

	stats := rec.Stats()
	assert.Equal(t, uint32(2), stats.LLMCalls)
	assert.Equal(t, uint64(10), stats.LLMInputTokens)
	assert.Equal(t, uint64(5), stats.LLMOutputTokens)
}

func TestRun_ToolRoundsLimit(t *testing.T) {
	t.Parallel()

	rec := callbacks.NewRecorder()
	m := newModel(t)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse(multiplyCall("call", `{"a":1,"b":1}`)), nil).
		Times(3)

	a := assistants.NewAssistant(m, newRegistry(t, rec),
		assistants.WithCallback(rec),
		assistants.WithFollowUp(true),
		assistants.WithMaxToolRounds(2),
	)
	_, err := a.Run(context.Background(), "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "the tool rounds limit of 2 is exceeded")
	assert.Equal(t, uint32(2), rec.Stats().ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), rec.Stats().AssistantCallsFailed)
}

func TestRun_ToolRoundsLimitReached(t *testing.T) {
	t.Parallel()

	rec := callbacks.NewRecorder()
	m := newModel(t)
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolCallResponse(multiplyCall("call_1", `{"a":2,"b":5}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(textResponse("The product is 10."), nil),
	)

	a := assistants.NewAssistant(m, newRegistry(t, rec),
		assistants.WithCallback(rec),
		assistants.WithFollowUp(true),
		assistants.WithMaxToolRounds(1),
	)
	resp, err := a.Run(context.Background(), "What is 2 times 5?")
	require.NoError(t, err)
	assert.Equal(t, "The product is 10.", resp.Content)
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, "10", resp.Executions[0].Result.Output)
	assert.Equal(t, uint32(0), rec.Stats().AssistantCallsFailed)
}

func TestRun_MissingToolCallIDs(t *testing.T) {
	t.Parallel()

	rec := callbacks.NewRecorder()
	m := newModel(t)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{
			{ToolCalls: []llms.ToolCall{multiplyCall("", `{"a":1,"b":2}`)}},
			{ToolCalls: []llms.ToolCall{multiplyCall("", `{"a":3,"b":4}`)}},
		}}, nil)

	a := assistants.NewAssistant(m, newRegistry(t, rec), assistants.WithCallback(rec))
	resp, err := a.Run(context.Background(), "two products")
	require.NoError(t, err)
	require.Len(t, resp.Executions, 2)

	id1, id2 := resp.Executions[0].Call.ID, resp.Executions[1].Call.ID
	assert.NotEmpty(t, id1)
	assert.NotEmpty(t, id2)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, "2", resp.Executions[0].Result.Output)
	assert.Equal(t, "12", resp.Executions[1].Result.Output)

	var responseIDs []string
	for _, msg := range resp.Messages {
		for _, p := range msg.Parts {
			if tr, ok := p.(llms.ToolCallResponse); ok {
				responseIDs = append(responseIDs, tr.ToolCallID)
			}
		}
	}
	assert.Equal(t, []string{id1, id2}, responseIDs)
}

func TestRun_ModelErrors(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name string
		resp *llms.ContentResponse
		err  error
		exp  string
	}{
		{
			name: "error",
			err:  errors.New("quota exceeded"),
			exp:  "failed to generate content from LLM: quota exceeded",
		},
		{
			name: "nil response",
			exp:  "LLM returned empty response with no choices",
		},
		{
			name: "no choices",
			resp: &llms.ContentResponse{},
			exp:  "LLM returned empty response with no choices",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := callbacks.NewRecorder()
			m := newModel(t)
			m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(tc.resp, tc.err)

			a := assistants.NewAssistant(m, newRegistry(t, rec), assistants.WithCallback(rec))
			_, err := a.Run(context.Background(), "hi")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.exp)

			events := rec.EventsOf(callbacks.EventAssistantError)
			require.Len(t, events, 1)
			assert.Equal(t, err, events[0].Err)
			assert.Empty(t, rec.EventsOf(callbacks.EventToolStart))
		})
	}
}

func TestRun_InvalidToolCalls(t *testing.T) {
	t.Parallel()

	rec := callbacks.NewRecorder()
	m := newModel(t)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse(
			llms.ToolCall{ID: "c1", FunctionCall: &llms.FunctionCall{Name: "divide", Arguments: `{"a":1,"b":2}`}},
			multiplyCall("c2", `{"a":"x","b":1}`),
			multiplyCall("c3", `{"a":`),
			llms.ToolCall{ID: "c4"},
			multiplyCall("c5", "```json\n{\"a\":3,\"b\":3}\n```"),
		), nil)

	a := assistants.NewAssistant(m, newRegistry(t, rec), assistants.WithCallback(rec))
	resp, err := a.Run(context.Background(), "do it")
	require.NoError(t, err)
	require.Len(t, resp.Executions, 4)

	ids := make([]string, 0, len(resp.Executions))
	for _, ex := range resp.Executions {
		ids = append(ids, ex.Call.ID)
	}
	assert.Equal(t, []string{"c1", "c2", "c3", "c5"}, ids)

	notFound := resp.Executions[0].Result
	require.False(t, notFound.OK())
	assert.Equal(t, tools.KindValidation, notFound.Error.Kind)
	assert.Contains(t, notFound.Error.Message, `tool "divide" not found`)

	badType := resp.Executions[1].Result
	require.False(t, badType.OK())
	assert.Equal(t, tools.KindValidation, badType.Error.Kind)
	assert.True(t, strings.HasPrefix(badType.Content(), "ValidationError: invalid arguments: "), badType.Content())
	assert.Contains(t, badType.Content(), `want "number"`)

	badJSON := resp.Executions[2].Result
	require.False(t, badJSON.OK())
	assert.Equal(t, tools.KindValidation, badJSON.Error.Kind)
	assert.True(t, strings.HasPrefix(badJSON.Error.Message, "arguments must be a JSON object"))

	fenced := resp.Executions[3].Result
	require.True(t, fenced.OK(), fenced.Content())
	assert.Equal(t, "9", fenced.Output)

	// every execution is bracketed by start and finish notifications
	stats := rec.Stats()
	assert.Equal(t, uint32(1), stats.ToolNotFound)
	assert.Equal(t, uint32(4), stats.ToolsCalls)
	assert.Equal(t, uint32(3), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
}

func TestRun_Limits(t *testing.T) {
	t.Parallel()

	m := newModel(t)
	a := assistants.NewAssistant(m, newRegistry(t, nil))

	_, err := a.Run(context.Background(), "  ")
	assert.EqualError(t, err, "assistant Tool Assistant: input is empty")

	_, err = a.Run(context.Background(), strings.Repeat("x", 100), assistants.WithMaxLength(10))
	assert.EqualError(t, err, "assistant Tool Assistant: the content size exceeded limit")

	_, err = a.Run(context.Background(), "hi", assistants.WithMaxMessages(0))
	assert.EqualError(t, err, "assistant Tool Assistant: the messages count exceeded limit")
}

func TestConfig(t *testing.T) {
	t.Parallel()

	cfg := assistants.NewConfig()
	assert.Equal(t, assistants.DefaultMaxToolRounds, cfg.MaxToolRounds)
	assert.Equal(t, assistants.DefaultMaxMessages, cfg.MaxMessages)
	assert.Equal(t, assistants.DefaultMaxContentSize, cfg.MaxLength)
	assert.False(t, cfg.FollowUp)

	cp := cfg.Apply(assistants.WithFollowUp(true), assistants.WithModel("gemini-2.0-flash"), assistants.WithMaxTokens(100))
	assert.True(t, cp.FollowUp)
	assert.False(t, cfg.FollowUp)
	assert.Len(t, cp.CallOptions, 2)
	assert.Empty(t, cfg.CallOptions)

	opts := llms.NewCallOptions(llms.CallOptions{}, cp.CallOptions...)
	assert.Equal(t, "gemini-2.0-flash", opts.Model)
	assert.Equal(t, 100, opts.MaxTokens)
}
