package googleai

import (
	"net/http"
	"os"

	"cloud.google.com/go/auth"
	"github.com/effective-security/x/values"
	"google.golang.org/genai"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Options is a set of options for Gemini API and Vertex AI clients.
type Options struct {
	CloudProject       string
	CloudLocation      string
	DefaultModel       string
	DefaultMaxTokens   int
	DefaultTemperature float64
	DefaultTopP        float64
	HarmThreshold      genai.HarmBlockThreshold
	APIKey             string
	BaseURL            string
	Credentials        *auth.Credentials
	HTTPClient         *http.Client
}

// DefaultOptions returns the defaults, temperature 0 keeps tool selection deterministic.
func DefaultOptions() Options {
	return Options{
		DefaultModel:       DefaultModel,
		DefaultMaxTokens:   8192,
		DefaultTemperature: 0,
		HarmThreshold:      genai.HarmBlockThresholdBlockOnlyHigh,
	}
}

// EnsureAuthPresent falls back to the GOOGLE_API_KEY or GEMINI_API_KEY
// environment variables when neither credentials nor a project are set.
func (o *Options) EnsureAuthPresent() {
	if o.Credentials == nil && o.CloudProject == "" && o.APIKey == "" {
		o.APIKey = values.StringsCoalesce(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))
	}
}

// Backend returns Vertex AI when a cloud project is configured.
func (o *Options) Backend() genai.Backend {
	if o.CloudProject != "" {
		return genai.BackendVertexAI
	}
	return genai.BackendGeminiAPI
}

type Option func(*Options)

// WithAPIKey passes the API key to the Gemini API client.
func WithAPIKey(apiKey string) Option {
	return func(opts *Options) {
		opts.APIKey = apiKey
	}
}

// WithBaseURL overrides the service endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithCredentials authenticates Vertex AI calls with the given credentials.
func WithCredentials(credentials *auth.Credentials) Option {
	return func(opts *Options) {
		if credentials == nil {
			return
		}
		opts.Credentials = credentials
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = httpClient
	}
}

// WithCloudProject selects the Vertex AI backend for the project.
func WithCloudProject(p string) Option {
	return func(opts *Options) {
		opts.CloudProject = p
	}
}

// WithCloudLocation sets the Vertex AI region.
func WithCloudLocation(l string) Option {
	return func(opts *Options) {
		opts.CloudLocation = l
	}
}

// WithDefaultModel sets the model used when a call does not provide one.
func WithDefaultModel(defaultModel string) Option {
	return func(opts *Options) {
		opts.DefaultModel = defaultModel
	}
}

func WithDefaultMaxTokens(maxTokens int) Option {
	return func(opts *Options) {
		opts.DefaultMaxTokens = maxTokens
	}
}

func WithDefaultTemperature(defaultTemperature float64) Option {
	return func(opts *Options) {
		opts.DefaultTemperature = defaultTemperature
	}
}

func WithDefaultTopP(defaultTopP float64) Option {
	return func(opts *Options) {
		opts.DefaultTopP = defaultTopP
	}
}

// WithHarmThreshold sets the safety threshold for all harm categories.
func WithHarmThreshold(ht genai.HarmBlockThreshold) Option {
	return func(opts *Options) {
		opts.HarmThreshold = ht
	}
}
