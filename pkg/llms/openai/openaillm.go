// Package openai implements llms.Model over the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolbind", "openai")

var (
	// ErrEmptyResponse is returned when the OpenAI API returns no choices.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMissingToken is returned when no API key is configured.
	ErrMissingToken = errors.New("missing the OpenAI API key, set it in the OPENAI_API_KEY environment variable")
)

type LLM struct {
	client *openai.Client
	model  string
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      os.Getenv(baseURLEnvVarName),
		organization: os.Getenv(organizationEnvVarName),
		maxRetries:   2,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.token == "" {
		return nil, ErrMissingToken
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithBaseURL(values.StringsCoalesce(o.baseURL, DefaultBaseURL)),
		option.WithMaxRetries(o.maxRetries),
	}
	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	client := openai.NewClient(sdkOpts...)
	return &LLM{
		client: &client,
		model:  values.StringsCoalesce(o.model, DefaultChatModel),
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.model}, options...)

	chatMsgs, err := ConvertMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(values.StringsCoalesce(opts.Model, o.model)),
		Messages: chatMsgs,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	if len(opts.Tools) > 0 {
		if params.Tools, err = ConvertTools(opts.Tools); err != nil {
			return nil, err
		}
		if choice := toolChoice(opts.ToolChoice); choice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choice)}
		}
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "chat_failed",
			"model", params.Model,
			"err", err.Error(),
		)
		return nil, errors.Wrap(err, "failed to create chat completion")
	}
	if result == nil || len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ConvertMessages converts messages to chat completion message parameters.
func ConvertMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	chatMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleSystem:
			chatMsgs = append(chatMsgs, openai.SystemMessage(msg.GetContent()))
		case llms.RoleHuman:
			chatMsgs = append(chatMsgs, openai.UserMessage(msg.GetContent()))
		case llms.RoleAI:
			asst := openai.ChatCompletionAssistantMessageParam{}
			var text []string
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case llms.TextContent:
					text = append(text, p.Text)
				case llms.ToolCall:
					if p.FunctionCall == nil {
						return nil, errors.Newf("tool call %q has no function", p.ID)
					}
					asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: p.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      p.FunctionCall.Name,
								Arguments: values.StringsCoalesce(p.FunctionCall.Arguments, "{}"),
							},
						},
					})
				default:
					return nil, errors.Newf("unsupported part %T in AI message", part)
				}
			}
			if len(text) > 0 {
				asst.Content.OfString = openai.String(strings.Join(text, ""))
			}
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case llms.RoleTool:
			for _, part := range msg.Parts {
				p, ok := part.(llms.ToolCallResponse)
				if !ok {
					return nil, errors.Newf("expected part of type ToolCallResponse for role %s, got %T", msg.Role, part)
				}
				chatMsgs = append(chatMsgs, openai.ToolMessage(p.Content, p.ToolCallID))
			}
		default:
			return nil, errors.Newf("role %s not supported", msg.Role)
		}
	}
	return chatMsgs, nil
}

// ConvertTools converts function tools to chat completion tools.
func ConvertTools(tools []llms.Tool) ([]openai.ChatCompletionToolUnionParam, error) {
	list := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		if t.Type != "function" || t.Function == nil {
			return nil, errors.Newf("tool type %s not supported", t.Type)
		}

		def := openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
		}
		if t.Function.Parameters != nil {
			js, err := json.Marshal(t.Function.Parameters)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to encode parameters of %s", t.Function.Name)
			}
			var params openai.FunctionParameters
			if err := json.Unmarshal(js, &params); err != nil {
				return nil, errors.Wrapf(err, "failed to decode parameters of %s", t.Function.Name)
			}
			def.Parameters = params
		}
		list = append(list, openai.ChatCompletionFunctionTool(def))
	}
	return list, nil
}

// toolChoice returns "auto", "none" or "required";
// a named function choice is sent as "required".
func toolChoice(choice any) string {
	switch c := choice.(type) {
	case string:
		switch strings.ToLower(c) {
		case "any", "required":
			return "required"
		case "none":
			return "none"
		case "auto":
			return "auto"
		}
	case llms.ToolChoice, *llms.ToolChoice:
		return "required"
	}
	return ""
}
