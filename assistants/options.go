package assistants

import (
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/effective-security/x/values"
)

const (
	// DefaultMaxToolRounds is the default number of tool call rounds
	// folded back to the model when follow up is enabled.
	DefaultMaxToolRounds = 5
	// DefaultMaxMessages is the default limit of messages in a conversation.
	DefaultMaxMessages = 50
	// DefaultMaxContentSize is the default limit of the conversation size in bytes.
	DefaultMaxContentSize = 512 * 1024
)

// Option is a function that can be used to modify the behavior of the Assistant Config.
type Option func(*Config)

// Config for the Assistant.
type Config struct {
	// CallOptions are passed to the model on every call.
	CallOptions []llms.CallOption

	// CallbackHandler is the callback handler for the assistant and LLM events.
	CallbackHandler Callback

	// FollowUp enables sending the tool results back to the model,
	// until it replies without tool calls.
	FollowUp bool
	// MaxToolRounds limits the tool call rounds when FollowUp is enabled.
	MaxToolRounds int
	// MaxMessages limits the number of messages in a conversation.
	MaxMessages int
	// MaxLength limits the size of the conversation in bytes.
	MaxLength int
}

// NewConfig returns a config with defaults and the given options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.MaxToolRounds = values.NumbersCoalesce(cfg.MaxToolRounds, DefaultMaxToolRounds)
	cfg.MaxMessages = values.NumbersCoalesce(cfg.MaxMessages, DefaultMaxMessages)
	cfg.MaxLength = values.NumbersCoalesce(cfg.MaxLength, DefaultMaxContentSize)
	return cfg
}

// Apply returns a copy of the config with the options applied.
func (c *Config) Apply(opts ...Option) *Config {
	cp := *c
	cp.CallOptions = append([]llms.CallOption(nil), c.CallOptions...)
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// WithCallback sets the callback handler.
func WithCallback(cb Callback) Option {
	return func(c *Config) {
		c.CallbackHandler = cb
	}
}

// WithFollowUp enables folding the tool results back to the model.
func WithFollowUp(enabled bool) Option {
	return func(c *Config) {
		c.FollowUp = enabled
	}
}

// WithMaxToolRounds sets the limit of tool call rounds.
func WithMaxToolRounds(n int) Option {
	return func(c *Config) {
		c.MaxToolRounds = n
	}
}

// WithMaxMessages sets the limit of messages in a conversation.
func WithMaxMessages(n int) Option {
	return func(c *Config) {
		c.MaxMessages = n
	}
}

// WithMaxLength sets the limit of the conversation size in bytes.
func WithMaxLength(n int) Option {
	return func(c *Config) {
		c.MaxLength = n
	}
}

// WithCallOptions adds options for the model calls.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(c *Config) {
		c.CallOptions = append(c.CallOptions, opts...)
	}
}

// WithModel sets the model name for the LLM call.
func WithModel(model string) Option {
	return WithCallOptions(llms.WithModel(model))
}

// WithTemperature sets the temperature for the LLM call.
func WithTemperature(temperature float64) Option {
	return WithCallOptions(llms.WithTemperature(temperature))
}

// WithMaxTokens sets the maximum number of tokens for the LLM call.
func WithMaxTokens(maxTokens int) Option {
	return WithCallOptions(llms.WithMaxTokens(maxTokens))
}
