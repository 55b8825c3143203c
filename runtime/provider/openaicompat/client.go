// Package openaicompat wraps the OpenAI Chat Completions adapter for the
// several providers that speak the same wire format without a native SDK of
// their own (Groq, Fireworks, xAI, Mistral) plus Azure OpenAI, which speaks
// OpenAI's own wire format under a deployment-specific base URL. Each of
// these gets a provider.Adapter by injecting a base URL into
// github.com/openai/openai-go rather than hand-rolling a near-duplicate
// client per provider.
package openaicompat

import (
	"context"
	"errors"
	"fmt"

	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/provider/openai"
)

// Provider identifies which OpenAI-wire-compatible service a Client talks to.
type Provider string

const (
	ProviderGroq      Provider = "groq"
	ProviderFireworks Provider = "fireworks"
	ProviderXAI       Provider = "xai"
	ProviderMistral   Provider = "mistral"
	ProviderAzure     Provider = "azure"
)

// defaultBaseURLs holds the well-known API base for each provider that does
// not need a deployment-specific override. Azure has none: every Azure
// OpenAI resource has its own endpoint, so BaseURL is required for it.
var defaultBaseURLs = map[Provider]string{
	ProviderGroq:      "https://api.groq.com/openai/v1",
	ProviderFireworks: "https://api.fireworks.ai/inference/v1",
	ProviderXAI:       "https://api.x.ai/v1",
	ProviderMistral:   "https://api.mistral.ai/v1",
}

// requiredEnv names the environment variable each provider's API key is
// expected to come from.
var requiredEnv = map[Provider]string{
	ProviderGroq:      "GROQ_API_KEY",
	ProviderFireworks: "FIREWORKS_API_KEY",
	ProviderXAI:       "XAI_API_KEY",
	ProviderMistral:   "MISTRAL_API_KEY",
	ProviderAzure:     "AZURE_OPENAI_API_KEY",
}

// Options configures a Client.
type Options struct {
	// Provider selects which OpenAI-wire-compatible service to target.
	Provider Provider

	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider's default API base. Required for
	// ProviderAzure; optional for the others.
	BaseURL string

	// DefaultModel is used when a request does not pin a model.
	DefaultModel string
}

// Client implements provider.Adapter for an OpenAI-wire-compatible provider,
// delegating request/response translation to the OpenAI adapter and adding
// only what differs per provider: the base URL, the required env var, and
// (for Fireworks) a streaming post-processor that strips inline reasoning
// tags out of the text stream.
type Client struct {
	*openai.Client
	provider Provider
}

// New builds a Client for the given provider.
func New(opts Options) (*Client, error) {
	if opts.Provider == "" {
		return nil, errors.New("openaicompat: provider is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("openaicompat: api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[opts.Provider]
		if baseURL == "" {
			return nil, fmt.Errorf("openaicompat: provider %q requires an explicit base URL", opts.Provider)
		}
	}
	inner, err := openai.NewFromAPIKey(opts.APIKey, baseURL, opts.DefaultModel)
	if err != nil {
		return nil, err
	}
	return &Client{Client: inner, provider: opts.Provider}, nil
}

// RequiredEnv lists the environment variable this provider's API key is
// conventionally read from, overriding the embedded OpenAI adapter's
// OPENAI_API_KEY.
func (c *Client) RequiredEnv() []string {
	if env, ok := requiredEnv[c.provider]; ok {
		return []string{env}
	}
	return nil
}

// Stream delegates to the embedded OpenAI adapter and, for Fireworks, wraps
// the resulting stream to strip <think>...</think> reasoning tags out of the
// text deltas before they reach the caller.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	s, err := c.Client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	if c.provider == ProviderFireworks {
		return newThinkTagStreamer(s), nil
	}
	return s, nil
}
