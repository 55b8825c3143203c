// Package provider defines the capability-set interface every LLM provider
// adapter satisfies, and the priority-ordered registry the completion runner
// uses to pick candidates for a model.
package provider

import (
	"fmt"

	"github.com/anotherai/gateway/runtime/model"
)

// Name identifies a provider. Adapters are registered under one Name and the
// runner orders candidates by Priority.
type Name string

const (
	NameGroq            Name = "groq"
	NameFireworks       Name = "fireworks"
	NameAnthropic       Name = "anthropic"
	NameAmazonBedrock   Name = "amazon_bedrock"
	NameAzureOpenAI     Name = "azure_openai"
	NameOpenAI          Name = "openai"
	NameGoogle          Name = "google"
	NameMistralAI       Name = "mistral_ai"
	NameGoogleGemini    Name = "google_gemini"
	NameXAI             Name = "x_ai"
)

// Priority is the default provider ordering used when selecting candidates
// for a model that supports more than one provider (spec §4.1 step 4).
// Index 0 is tried first.
var Priority = []Name{
	NameGroq,
	NameFireworks,
	NameAnthropic,
	NameAmazonBedrock,
	NameAzureOpenAI,
	NameOpenAI,
	NameGoogle,
	NameMistralAI,
	NameGoogleGemini,
	NameXAI,
}

// Adapter is the capability set every provider implements. It embeds
// model.Client (Complete/Stream), the shared request/response translation
// seam, so the runner can dispatch through the provider's own SDK rather
// than a hand-rolled HTTP layer: each adapter is stateless beyond its
// injected SDK client, and translates model.Request/Response internally
// using that SDK's own request/response and streaming types.
type Adapter interface {
	model.Client

	// DefaultModel returns the model id used when a request does not pin
	// one explicitly.
	DefaultModel() string

	// RequiredEnv lists the environment variables this adapter needs to be
	// configured (e.g. "OPENAI_API_KEY").
	RequiredEnv() []string
}

// Registry maps a Name to a constructed Adapter along with the model ids it
// supports, so the runner can compute the candidate list for a requested
// model without the adapters knowing about each other.
type Registry struct {
	adapters map[Name]Adapter
	models   map[Name][]string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Name]Adapter),
		models:   make(map[Name][]string),
	}
}

// Register associates name with adapter and the model ids it can serve.
func (r *Registry) Register(name Name, adapter Adapter, models []string) {
	r.adapters[name] = adapter
	r.models[name] = models
}

// Adapter returns the registered adapter for name, or an error if none was
// registered.
func (r *Registry) Adapter(name Name) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("provider: no adapter registered for %q", name)
	}
	return a, nil
}

// CandidatesForModel returns, in Priority order, the providers that declare
// support for modelID. An explicit pin (single non-empty only) short-circuits
// to that one provider if it supports the model.
func (r *Registry) CandidatesForModel(modelID string, pin Name) ([]Name, error) {
	supports := func(name Name) bool {
		for _, m := range r.models[name] {
			if m == modelID {
				return true
			}
		}
		return false
	}
	if pin != "" {
		if !supports(pin) {
			return nil, fmt.Errorf("provider: %q does not support model %q", pin, modelID)
		}
		return []Name{pin}, nil
	}
	var candidates []Name
	for _, name := range Priority {
		if supports(name) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("provider: no provider supports model %q", modelID)
	}
	return candidates, nil
}
