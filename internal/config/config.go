// Package config provides the configuration of the tooldemo application.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/pkg/llmfactory"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/toolbind/pkg/llms/googleai"
	"github.com/effective-security/toolbind/tools/numverify"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

// NumverifyAPIKeyEnv is the environment variable used
// when the config does not provide the NUMVERIFY key.
const NumverifyAPIKeyEnv = "NUMVERIFY_API_KEY"

// Config of the application
type Config struct {
	// LogLevel is one of TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=TRACE DEBUG INFO NOTICE WARNING ERROR CRITICAL"`

	LLM       llmfactory.Config `json:"llm" yaml:"llm"`
	Numverify numverify.Config  `json:"numverify" yaml:"numverify"`
	Assistant Assistant         `json:"assistant" yaml:"assistant"`
}

// Assistant configures the demo assistant
type Assistant struct {
	// Name is used to select the model from llm.assistant_models
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// FollowUp sends the tool results back to the model for a final answer
	FollowUp      bool    `json:"follow_up,omitempty" yaml:"follow_up,omitempty"`
	MaxToolRounds int     `json:"max_tool_rounds,omitempty" yaml:"max_tool_rounds,omitempty" validate:"gte=0,lte=20"`
	Temperature   float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
}

// Load returns the configuration from file,
// an empty file name returns the defaults.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %q", file)
		}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.LogLevel = strings.ToUpper(values.StringsCoalesce(c.LogLevel, "INFO"))
	c.Numverify.APIKey = values.StringsCoalesce(c.Numverify.APIKey, os.Getenv(NumverifyAPIKeyEnv))
	c.Numverify.BaseURL = values.StringsCoalesce(c.Numverify.BaseURL, numverify.DefaultBaseURL)
	c.Assistant.Name = values.StringsCoalesce(c.Assistant.Name, "phone")

	if len(c.LLM.Providers) == 0 {
		// the Gemini key is taken from GOOGLE_API_KEY or GEMINI_API_KEY
		c.LLM.Providers = []*llmfactory.ProviderConfig{
			{
				Name:         "gemini",
				Type:         string(llms.ProviderGoogleAI),
				DefaultModel: googleai.DefaultModel,
			},
		}
	}
}

var validate = validator.New()

// Validate returns an error if the config is invalid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid config")
	}
	for _, p := range c.LLM.Providers {
		switch llms.ProviderType(strings.ToUpper(p.Type)) {
		case llms.ProviderOpenAI, llms.ProviderAnthropic, llms.ProviderGoogleAI:
		default:
			return errors.Newf("invalid config: provider %q has unsupported type %q", p.Name, p.Type)
		}
	}
	return nil
}

// Level returns the log level
func (c *Config) Level() xlog.LogLevel {
	switch c.LogLevel {
	case "TRACE":
		return xlog.TRACE
	case "DEBUG":
		return xlog.DEBUG
	case "NOTICE":
		return xlog.NOTICE
	case "WARNING":
		return xlog.WARNING
	case "ERROR":
		return xlog.ERROR
	case "CRITICAL":
		return xlog.CRITICAL
	}
	return xlog.INFO
}
