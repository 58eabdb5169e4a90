package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// TokenEnvVarName is the environment variable with the API key.
	TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"
)

type Options struct {
	Token      string
	Model      string
	BaseURL    string
	MaxRetries int
	HTTPClient option.HTTPClient
}

type Option func(*Options)

// WithToken passes the Anthropic API token to the client. If not set, the token
// is read from the ANTHROPIC_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL overrides the Anthropic API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithMaxRetries sets the retries of the SDK on transient failures.
func WithMaxRetries(n int) Option {
	return func(opts *Options) {
		opts.MaxRetries = n
	}
}

// WithHTTPClient sets the HTTP client, http.DefaultClient is used if not set.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}
