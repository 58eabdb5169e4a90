package assistants

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/effective-security/toolbind/pkg/metricskey"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Execution is a tool call requested by the model and its result.
type Execution struct {
	Call   llms.ToolCall `json:"call" yaml:"call"`
	Result *tools.Result `json:"result" yaml:"result"`
}

// Response is the outcome of an assistant run.
type Response struct {
	// Content is the final text reply of the model.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	// Executions are the tool calls made during the run, in the order requested.
	Executions []*Execution `json:"executions,omitempty" yaml:"executions,omitempty"`
	// Messages is the full conversation, including the system prompt.
	Messages []llms.Message `json:"-" yaml:"-"`
	// LLMResponse is the last response of the model.
	LLMResponse *llms.ContentResponse `json:"-" yaml:"-"`
}

// Assistant sends a prompt to the model with the tools of the registry,
// runs the tool calls the model produces and optionally returns the results
// to the model for a final answer.
type Assistant struct {
	LLM      llms.Model
	Registry *tools.Registry

	cfg         *Config
	name        string
	description string
	sysprompt   string
}

var _ IAssistant = (*Assistant)(nil)

// NewAssistant returns an assistant using the model and tools from the registry.
func NewAssistant(model llms.Model, registry *tools.Registry, opts ...Option) *Assistant {
	return &Assistant{
		LLM:         model,
		Registry:    registry,
		cfg:         NewConfig(opts...),
		name:        "Tool Assistant",
		description: "An AI assistant that answers questions using the registered tools.",
	}
}

// WithName sets the name of the Assistant.
func (a *Assistant) WithName(name string) *Assistant {
	a.name = name
	return a
}

// WithDescription sets the description of the Assistant.
func (a *Assistant) WithDescription(description string) *Assistant {
	a.description = description
	return a
}

// WithSystemPrompt sets the system prompt sent before the user input.
func (a *Assistant) WithSystemPrompt(prompt string) *Assistant {
	a.sysprompt = prompt
	return a
}

// Name returns the name of the Assistant.
func (a *Assistant) Name() string {
	return a.name
}

// Description returns the description of the Assistant.
func (a *Assistant) Description() string {
	return a.description
}

// ToolDefinitions returns the registry tools in the shape expected by the model.
func (a *Assistant) ToolDefinitions() []llms.Tool {
	return ToolDefinitions(a.Registry.Tools()...)
}

// ToolDefinitions converts tools to model function definitions.
func ToolDefinitions(list ...tools.ITool) []llms.Tool {
	defs := make([]llms.Tool, 0, len(list))
	for _, t := range list {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Run sends input to the model and executes the tool calls it produces.
func (a *Assistant) Run(ctx context.Context, input string, opts ...Option) (*Response, error) {
	cfg := a.cfg.Apply(opts...)

	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnAssistantStart(ctx, a, input)
	}

	resp, err := a.run(ctx, cfg, input)
	if err != nil {
		if callback != nil {
			callback.OnAssistantError(ctx, a, input, err)
		}
		return nil, err
	}
	if callback != nil {
		callback.OnAssistantEnd(ctx, a, input, resp)
	}
	return resp, nil
}

func (a *Assistant) run(ctx context.Context, cfg *Config, input string) (*Response, error) {
	if strings.TrimSpace(input) == "" {
		return nil, errors.Newf("assistant %s: input is empty", a.name)
	}

	var messages []llms.Message
	if a.sysprompt != "" {
		messages = append(messages, llms.MessageFromTextParts(llms.RoleSystem, a.sysprompt))
	}
	messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, input))

	callOpts := cfg.CallOptions
	if defs := a.ToolDefinitions(); len(defs) > 0 {
		callOpts = append(callOpts, llms.WithTools(defs))
	}

	res := &Response{}
	for round := 0; ; round++ {
		llmResp, err := a.generate(ctx, cfg, messages, callOpts)
		if err != nil {
			res.Messages = messages
			return nil, err
		}
		res.LLMResponse = llmResp

		var calls []llms.ToolCall
		for _, choice := range llmResp.Choices {
			for _, tc := range choice.ToolCalls {
				if tc.FunctionCall == nil {
					logger.ContextKV(ctx, xlog.WARNING,
						"assistant", a.name,
						"status", "tool_call_without_function",
						"tool_call_id", tc.ID,
					)
					continue
				}
				if tc.ID == "" {
					tc.ID = uuid.NewString()
				}
				tc.Type = values.StringsCoalesce(tc.Type, "function")
				calls = append(calls, tc)
			}
		}

		if len(calls) == 0 {
			res.Content = choicesContent(llmResp)
			messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, res.Content))
			break
		}
		if round >= cfg.MaxToolRounds {
			res.Messages = messages
			return nil, errors.Newf("assistant %s: the tool rounds limit of %d is exceeded", a.name, cfg.MaxToolRounds)
		}

		executions := a.executeToolCalls(ctx, calls)
		res.Executions = append(res.Executions, executions...)

		messages = append(messages, llms.MessageFromToolCalls(llms.RoleAI, calls...))
		for _, ex := range executions {
			messages = append(messages, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: ex.Call.ID,
				Name:       ex.Call.FunctionCall.Name,
				Content:    ex.Result.Content(),
			}))
		}

		if !cfg.FollowUp {
			res.Content = choicesContent(llmResp)
			break
		}
	}

	res.Messages = messages
	return res, nil
}

func (a *Assistant) generate(ctx context.Context, cfg *Config, messages []llms.Message, callOpts []llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) > cfg.MaxMessages {
		return nil, errors.Newf("assistant %s: the messages count exceeded limit", a.name)
	}
	bytesSent := llmutils.CountMessagesContentSize(messages)
	if bytesSent > uint64(cfg.MaxLength) {
		return nil, errors.Newf("assistant %s: the content size exceeded limit", a.name)
	}

	provider := string(a.LLM.GetProviderType())
	modelName := a.LLM.GetName()

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnAssistantLLMCallStart(ctx, a, a.LLM, messages)
	}

	started := time.Now()
	resp, err := a.LLM.GenerateContent(ctx, messages, callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, provider, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), provider, modelName)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, provider, modelName)
		return nil, errors.Wrap(err, "failed to generate content from LLM")
	}
	if resp == nil || len(resp.Choices) == 0 {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, provider, modelName)
		return nil, errors.Newf("assistant %s: LLM returned empty response with no choices", a.name)
	}

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnAssistantLLMCallEnd(ctx, a, a.LLM, resp)
	}

	metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), provider, modelName)
	tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), provider, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), provider, modelName)

	return resp, nil
}

// executeToolCalls runs the tool calls concurrently,
// the executions are returned in the order of calls.
func (a *Assistant) executeToolCalls(ctx context.Context, calls []llms.ToolCall) []*Execution {
	executions := make([]*Execution, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, tc := range calls {
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()

			req := &tools.Request{
				ID:           tc.ID,
				Tool:         tc.FunctionCall.Name,
				RawArguments: tc.FunctionCall.Arguments,
			}
			res := a.Registry.Invoke(ctx, req)

			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", a.name,
				"status", "tool_call_response",
				"tool_call_id", tc.ID,
				"tool_name", req.Tool,
				"ok", res.OK(),
			)
			executions[index] = &Execution{Call: tc, Result: res}
		}(i, tc)
	}
	wg.Wait()

	return executions
}

func choicesContent(resp *llms.ContentResponse) string {
	var parts []string
	for _, choice := range resp.Choices {
		if choice.Content != "" {
			parts = append(parts, choice.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
