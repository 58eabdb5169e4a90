package googleai

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// ConvertTools converts function tools to genai tools.
func ConvertTools(tools []llms.Tool) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != "function" || tool.Function == nil {
			return nil, errors.Newf("tool [%d]: unsupported type %q, want 'function'", i, tool.Type)
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			params, err := ConvertSchema(tool.Function.Parameters)
			if err != nil {
				return nil, errors.WithMessagef(err, "tool %q", tool.Function.Name)
			}
			decl.Parameters = params
		}
		decls = append(decls, decl)
	}

	// Gemini expects all functions in a single tool
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// ConvertSchema converts a JSON schema to the OpenAPI subset accepted by Gemini.
func ConvertSchema(js *jsonschema.Schema) (*genai.Schema, error) {
	if js == nil {
		return nil, nil
	}

	out := &genai.Schema{
		Type:        ConvertSchemaType(js.Type),
		Title:       js.Title,
		Description: js.Description,
		Format:      js.Format,
		Pattern:     js.Pattern,
		Required:    js.Required,
		MinLength:   uint64Ptr(js.MinLength),
		MaxLength:   uint64Ptr(js.MaxLength),
		MinItems:    uint64Ptr(js.MinItems),
		MaxItems:    uint64Ptr(js.MaxItems),
		Minimum:     numberPtr(js.Minimum),
		Maximum:     numberPtr(js.Maximum),
	}
	for _, e := range js.Enum {
		s, ok := e.(string)
		if !ok {
			return nil, errors.Newf("enum value %v is not a string", e)
		}
		out.Enum = append(out.Enum, s)
	}

	if js.Properties != nil {
		out.Properties = make(map[string]*genai.Schema, js.Properties.Len())
		for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
			prop, err := ConvertSchema(pair.Value)
			if err != nil {
				return nil, errors.WithMessagef(err, "property %q", pair.Key)
			}
			out.Properties[pair.Key] = prop
			out.PropertyOrdering = append(out.PropertyOrdering, pair.Key)
		}
	}

	if js.Items != nil {
		items, err := ConvertSchema(js.Items)
		if err != nil {
			return nil, errors.WithMessage(err, "items")
		}
		out.Items = items
	}

	return out, nil
}

// ConvertSchemaType converts a JSON schema type to a genai type.
func ConvertSchemaType(dt string) genai.Type {
	switch dt {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}

// convertToolChoice accepts "auto", "none", "any" or "required",
// or a llms.ToolChoice naming the function.
func convertToolChoice(choice any) (*genai.ToolConfig, error) {
	var fc *genai.FunctionCallingConfig
	switch c := choice.(type) {
	case nil:
		return nil, nil
	case string:
		switch strings.ToLower(c) {
		case "", "auto":
			fc = &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}
		case "none":
			fc = &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}
		case "any", "required":
			fc = &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}
		default:
			return nil, errors.Newf("unsupported tool choice: %q", c)
		}
	case llms.ToolChoice:
		return convertToolChoice(&c)
	case *llms.ToolChoice:
		fc = &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}
		if c.Function != nil {
			fc.AllowedFunctionNames = []string{c.Function.Name}
		}
	default:
		return nil, errors.Newf("unsupported tool choice type: %T", choice)
	}
	return &genai.ToolConfig{FunctionCallingConfig: fc}, nil
}

// convertParts converts message parts to genai parts.
func convertParts(parts []llms.ContentPart) ([]*genai.Part, error) {
	converted := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		out := new(genai.Part)

		switch p := part.(type) {
		case llms.TextContent:
			out.Text = p.Text
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return nil, errors.Newf("tool call %q has no function", p.ID)
			}
			args := map[string]any{}
			if strings.TrimSpace(p.FunctionCall.Arguments) != "" {
				if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &args); err != nil {
					return nil, errors.Wrapf(err, "invalid arguments of tool call %q", p.ID)
				}
			}
			out.FunctionCall = &genai.FunctionCall{
				ID:   p.ID,
				Name: p.FunctionCall.Name,
				Args: args,
			}
		case llms.ToolCallResponse:
			out.FunctionResponse = &genai.FunctionResponse{
				ID:   p.ToolCallID,
				Name: p.Name,
				Response: map[string]any{
					"response": p.Content,
				},
			}
		default:
			return nil, errors.Newf("unsupported content part: %T", part)
		}

		converted = append(converted, out)
	}
	return converted, nil
}

// convertContent converts a message to genai content.
func convertContent(msg llms.Message) (*genai.Content, error) {
	parts, err := convertParts(msg.Parts)
	if err != nil {
		return nil, err
	}

	c := &genai.Content{
		Parts: parts,
	}

	switch msg.Role {
	case llms.RoleSystem, llms.RoleHuman, llms.RoleTool:
		c.Role = roleUser
	case llms.RoleAI:
		c.Role = roleModel
	default:
		return nil, errors.Newf("role %q not supported", msg.Role)
	}

	return c, nil
}

// convertCandidates converts genai candidates to a response.
func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	resp := &llms.ContentResponse{}

	for _, candidate := range candidates {
		var buf strings.Builder
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					b, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, errors.Wrap(err, "failed to encode function call arguments")
					}
					id := part.FunctionCall.ID
					if id == "" {
						id = uuid.NewString()
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   id,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(b),
						},
					})
				case part.Thought:
					// skip
				case part.Text != "":
					buf.WriteString(part.Text)
				}
			}
		}

		metadata := map[string]any{
			"citations": candidate.CitationMetadata,
			"safety":    candidate.SafetyRatings,
		}
		if usage != nil {
			metadata["InputTokens"] = int64(usage.PromptTokenCount)
			metadata["CacheReadTokens"] = int64(usage.CachedContentTokenCount)
			metadata["OutputTokens"] = int64(usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount)
			metadata["TotalTokens"] = int64(usage.TotalTokenCount)
		}

		resp.Choices = append(resp.Choices, &llms.ContentChoice{
			Content:        buf.String(),
			StopReason:     string(candidate.FinishReason),
			GenerationInfo: metadata,
			ToolCalls:      toolCalls,
		})
	}
	return resp, nil
}

func uint64Ptr(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}

func numberPtr(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
