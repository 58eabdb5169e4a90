// Package llmfactory builds tool-calling models from provider configuration
// (OpenAI, Anthropic, Google AI) and caches them by provider type and model name.
package llmfactory
