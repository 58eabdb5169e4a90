package llmfactory

import (
	"slices"

	"github.com/effective-security/x/configloader"
)

// Config describes the configured model providers.
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
	// DefaultProvider specifies the name of the default provider
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// AssistantModels specifies the mapping of assistants to models.
	// key is the assistant name, value is the list of preferred model names.
	// Use `default: [<model_name>]` as the default model for assistants.
	AssistantModels map[string][]string `json:"assistant_models" yaml:"assistant_models"`
}

// ProviderConfig for a single model provider
type ProviderConfig struct {
	Name string `json:"name" yaml:"name"`
	// Type specifies the provider: OPENAI|ANTHROPIC|GOOGLEAI
	Type            string   `json:"type" yaml:"type"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`

	// MaxTokens, Temperature and TopP are the generation defaults,
	// a call may override them.
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`

	OpenAI   OpenAIConfig   `json:"open_ai" yaml:"open_ai"`
	GoogleAI GoogleAIConfig `json:"google_ai" yaml:"google_ai"`
}

// OpenAIConfig specifies OpenAI specific options
type OpenAIConfig struct {
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
}

// GoogleAIConfig specifies Vertex AI options.
// When Project is empty, the Gemini API is used with the Token.
type GoogleAIConfig struct {
	Project  string `json:"project,omitempty" yaml:"project,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

// FindModel returns the first of the models that the provider serves,
// or the provider's default model.
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
