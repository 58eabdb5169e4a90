// Package anthropic implements llms.Model over the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrEmptyResponse          = errors.New("anthropic: no response")
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

// DefaultMaxTokens is required by the API.
const DefaultMaxTokens = 4096

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic client.
// The token is read from ANTHROPIC_API_KEY when not provided.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:      os.Getenv(TokenEnvVarName),
		Model:      DefaultModel,
		MaxRetries: 2,
		HTTPClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.Token == "" {
		return nil, ErrMissingToken
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
		option.WithRequestTimeout(5 * time.Minute),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{
		Client:  &client,
		Options: options,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
// All content blocks of the reply are returned as a single choice.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.Options.Model}, options...)

	sdkMessages, system, err := ProcessMessages(messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(values.StringsCoalesce(opts.Model, o.Options.Model)),
		Messages:    sdkMessages,
		MaxTokens:   values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}
	if len(opts.Tools) > 0 {
		if params.Tools, err = ToTools(opts.Tools); err != nil {
			return nil, err
		}
		if params.ToolChoice, err = toToolChoice(opts.ToolChoice); err != nil {
			return nil, err
		}
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}
	if result == nil || len(result.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		StopReason: string(result.StopReason),
		GenerationInfo: map[string]any{
			"InputTokens":     result.Usage.InputTokens,
			"OutputTokens":    result.Usage.OutputTokens,
			"TotalTokens":     result.Usage.InputTokens + result.Usage.OutputTokens,
			"CacheReadTokens": result.Usage.CacheReadInputTokens,
			"ID":              result.ID,
		},
	}

	var text []string
	for _, block := range result.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, content.Text)
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(content.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   content.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      content.Name,
					Arguments: string(args),
				},
			})
		case anthropic.ThinkingBlock, anthropic.RedactedThinkingBlock:
			// skip
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "%T", content)
		}
	}
	choice.Content = strings.Join(text, "")

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}

// ToTools converts function tools to Anthropic tool parameters.
func ToTools(tools []llms.Tool) ([]anthropic.ToolUnionParam, error) {
	sdkTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != "function" || tool.Function == nil {
			return nil, errors.Newf("anthropic: tool [%d]: unsupported type %q", i, tool.Type)
		}

		inputSchema := anthropic.ToolInputSchemaParam{}
		if params := tool.Function.Parameters; params != nil {
			if params.Properties != nil {
				properties := make(map[string]any, params.Properties.Len())
				for pair := params.Properties.Oldest(); pair != nil; pair = pair.Next() {
					properties[pair.Key] = pair.Value
				}
				inputSchema.Properties = properties
			}
			inputSchema.Required = params.Required
		}

		sdkTools = append(sdkTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return sdkTools, nil
}

func toToolChoice(choice any) (anthropic.ToolChoiceUnionParam, error) {
	switch c := choice.(type) {
	case nil:
		return anthropic.ToolChoiceUnionParam{}, nil
	case string:
		switch strings.ToLower(c) {
		case "", "auto":
			return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, nil
		case "any", "required":
			return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil
		case "none":
			return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}, nil
		}
		return anthropic.ToolChoiceUnionParam{}, errors.Newf("anthropic: unsupported tool choice: %q", c)
	case llms.ToolChoice:
		return toToolChoice(&c)
	case *llms.ToolChoice:
		if c.Function == nil {
			return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil
		}
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: c.Function.Name}}, nil
	}
	return anthropic.ToolChoiceUnionParam{}, errors.Newf("anthropic: unsupported tool choice type: %T", choice)
}

// ProcessMessages converts messages to Anthropic message parameters,
// system messages are returned as the system prompt.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	var system []string
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}

		var contents []anthropic.ContentBlockParamUnion
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				if msg.Role == llms.RoleSystem {
					system = append(system, p.Text)
					continue
				}
				contents = append(contents, anthropic.NewTextBlock(p.Text))
			case llms.ToolCall:
				if msg.Role != llms.RoleAI || p.FunctionCall == nil {
					return nil, "", errors.WithMessagef(ErrUnsupportedContentType, "tool call in %s message", msg.Role)
				}
				input := json.RawMessage("{}")
				if strings.TrimSpace(p.FunctionCall.Arguments) != "" {
					input = json.RawMessage(p.FunctionCall.Arguments)
				}
				if !json.Valid(input) {
					return nil, "", errors.Newf("anthropic: invalid arguments of tool call %q", p.ID)
				}
				contents = append(contents, anthropic.NewToolUseBlock(p.ID, input, p.FunctionCall.Name))
			case llms.ToolCallResponse:
				if msg.Role != llms.RoleTool {
					return nil, "", errors.WithMessagef(ErrUnsupportedContentType, "tool response in %s message", msg.Role)
				}
				contents = append(contents, anthropic.NewToolResultBlock(p.ToolCallID, p.Content, false))
			default:
				return nil, "", errors.WithMessagef(ErrUnsupportedContentType, "%T", part)
			}
		}
		if len(contents) == 0 {
			continue
		}

		switch msg.Role {
		case llms.RoleHuman, llms.RoleTool:
			chatMessages = append(chatMessages, anthropic.NewUserMessage(contents...))
		case llms.RoleAI:
			chatMessages = append(chatMessages, anthropic.NewAssistantMessage(contents...))
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "%s", msg.Role)
		}
	}
	return chatMessages, strings.Join(system, "\n"), nil
}
