package googleai

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"google.golang.org/genai"
)

// ErrNoContentInResponse is returned when the response has no candidates.
var ErrNoContentInResponse = errors.New("no content in generation response")

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{
		Model:       g.opts.DefaultModel,
		MaxTokens:   g.opts.DefaultMaxTokens,
		Temperature: g.opts.DefaultTemperature,
		TopP:        g.opts.DefaultTopP,
	}, options...)

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genai.Ptr(float32(opts.Temperature)),
	}
	if opts.TopP > 0 {
		callCfg.TopP = genai.Ptr(float32(opts.TopP))
	}

	for _, category := range []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
	} {
		callCfg.SafetySettings = append(callCfg.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: g.opts.HarmThreshold,
		})
	}

	var err error
	if callCfg.Tools, err = ConvertTools(opts.Tools); err != nil {
		return nil, err
	}
	if len(callCfg.Tools) > 0 {
		if callCfg.ToolConfig, err = convertToolChoice(opts.ToolChoice); err != nil {
			return nil, err
		}
	}

	history := make([]*genai.Content, 0, len(messages))
	var system []string
	for _, msg := range messages {
		if msg.Role == llms.RoleSystem {
			system = append(system, msg.GetContent())
			continue
		}
		content, err := convertContent(msg)
		if err != nil {
			return nil, err
		}
		history = append(history, content)
	}
	if len(system) > 0 {
		callCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	model := values.StringsCoalesce(opts.Model, g.opts.DefaultModel)
	resp, err := g.client.Models.GenerateContent(ctx, model, history, callCfg)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "generate_failed",
			"model", model,
			"err", err.Error(),
		)
		return nil, errors.Wrapf(err, "failed to generate content with %s", model)
	}

	if len(resp.Candidates) == 0 {
		return nil, ErrNoContentInResponse
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}
