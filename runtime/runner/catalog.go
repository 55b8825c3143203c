package runner

import (
	"sort"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/provider"
)

// ModelInfo describes one model id the gateway knows how to route: which
// providers can serve it (in no particular order here; provider.Priority
// supplies the ordering), its reasoning-budget window when it supports
// extended thinking, and its per-token pricing for cost accounting.
type ModelInfo struct {
	ID          string
	DisplayName string
	Providers   []provider.Name

	// ReasoningBudget is nil for models that don't support a reasoning
	// effort/budget hint.
	ReasoningBudget *domain.ModelReasoningBudget

	PricePerInputTokenUSD  float64
	PricePerOutputTokenUSD float64
}

// Catalog is the strict table of known model ids the runner resolves
// against. It is intentionally a flat map plus a sorted id list, not a
// client to any remote model-listing API: the set of models the gateway
// supports is a deployment-time decision (spec §4.1 step 1's "strict
// mapping").
type Catalog struct {
	models map[string]*ModelInfo
	ids    []string
}

// NewCatalog builds an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{models: make(map[string]*ModelInfo)}
}

// Register adds info to the catalog, keyed by info.ID.
func (c *Catalog) Register(info *ModelInfo) {
	c.models[info.ID] = info
	c.ids = append(c.ids, info.ID)
	sort.Strings(c.ids)
}

// Lookup returns the registered ModelInfo for id, if any.
func (c *Catalog) Lookup(id string) (*ModelInfo, bool) {
	info, ok := c.models[id]
	return info, ok
}

// IDs returns every registered model id in a stable, sorted order.
func (c *Catalog) IDs() []string {
	return c.ids
}

// Resolve looks up modelID strictly; on a miss it suggests the closest known
// id by edit distance and fails with invalid_run_options. It never
// recurses or consults any other suggestion path (see DESIGN.md's "open
// question" decision for suggest_model).
func (c *Catalog) Resolve(modelID string) (*ModelInfo, error) {
	if info, ok := c.models[modelID]; ok {
		return info, nil
	}
	if len(c.ids) == 0 {
		return nil, apierror.Newf(apierror.KindInvalidRunOptions, "unknown model %q", modelID)
	}
	suggestion := c.ids[0]
	best := levenshtein(modelID, suggestion)
	for _, id := range c.ids[1:] {
		if d := levenshtein(modelID, id); d < best {
			best = d
			suggestion = id
		}
	}
	return nil, apierror.Newf(apierror.KindInvalidRunOptions,
		"unknown model %q, did you mean %q?", modelID, suggestion)
}

// NewDefaultCatalog returns the gateway's built-in model table, covering at
// least one model per wired provider adapter.
func NewDefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, info := range defaultModels {
		info := info
		c.Register(&info)
	}
	return c
}

var defaultModels = []ModelInfo{
	{
		ID:                     "gpt-4o",
		DisplayName:            "GPT-4o",
		Providers:              []provider.Name{provider.NameOpenAI, provider.NameAzureOpenAI},
		PricePerInputTokenUSD:  2.5e-6,
		PricePerOutputTokenUSD: 1e-5,
	},
	{
		ID:                     "gpt-4o-mini",
		DisplayName:            "GPT-4o mini",
		Providers:              []provider.Name{provider.NameOpenAI, provider.NameAzureOpenAI},
		PricePerInputTokenUSD:  1.5e-7,
		PricePerOutputTokenUSD: 6e-7,
	},
	{
		ID:                     "gpt-4.1-mini",
		DisplayName:            "GPT-4.1 mini",
		Providers:              []provider.Name{provider.NameOpenAI, provider.NameAzureOpenAI},
		PricePerInputTokenUSD:  4e-7,
		PricePerOutputTokenUSD: 1.6e-6,
	},
	{
		ID:          "claude-3-5-sonnet-latest",
		DisplayName: "Claude 3.5 Sonnet",
		Providers:   []provider.Name{provider.NameAnthropic, provider.NameAmazonBedrock},
		ReasoningBudget: &domain.ModelReasoningBudget{
			Min: 1024,
			Max: 32000,
			PerEffort: map[domain.ReasoningEffort]int{
				domain.ReasoningEffortLow:    2000,
				domain.ReasoningEffortMedium: 8000,
				domain.ReasoningEffortHigh:   24000,
			},
		},
		PricePerInputTokenUSD:  3e-6,
		PricePerOutputTokenUSD: 1.5e-5,
	},
	{
		ID:                     "claude-3-5-haiku-latest",
		DisplayName:            "Claude 3.5 Haiku",
		Providers:              []provider.Name{provider.NameAnthropic, provider.NameAmazonBedrock},
		PricePerInputTokenUSD:  8e-7,
		PricePerOutputTokenUSD: 4e-6,
	},
	{
		ID:                     "gemini-1.5-pro",
		DisplayName:            "Gemini 1.5 Pro",
		Providers:              []provider.Name{provider.NameGoogle, provider.NameGoogleGemini},
		PricePerInputTokenUSD:  1.25e-6,
		PricePerOutputTokenUSD: 5e-6,
	},
	{
		ID:                     "gemini-1.5-flash",
		DisplayName:            "Gemini 1.5 Flash",
		Providers:              []provider.Name{provider.NameGoogle, provider.NameGoogleGemini},
		PricePerInputTokenUSD:  7.5e-8,
		PricePerOutputTokenUSD: 3e-7,
	},
	{
		ID:                     "llama-3.3-70b-versatile",
		DisplayName:            "Llama 3.3 70B (Groq)",
		Providers:              []provider.Name{provider.NameGroq},
		PricePerInputTokenUSD:  5.9e-7,
		PricePerOutputTokenUSD: 7.9e-7,
	},
	{
		ID:                     "llama-v3p1-405b-instruct",
		DisplayName:            "Llama 3.1 405B (Fireworks)",
		Providers:              []provider.Name{provider.NameFireworks},
		PricePerInputTokenUSD:  3e-6,
		PricePerOutputTokenUSD: 3e-6,
	},
	{
		ID:                     "grok-2-latest",
		DisplayName:            "Grok 2",
		Providers:              []provider.Name{provider.NameXAI},
		PricePerInputTokenUSD:  2e-6,
		PricePerOutputTokenUSD: 1e-5,
	},
	{
		ID:                     "mistral-large-latest",
		DisplayName:            "Mistral Large",
		Providers:              []provider.Name{provider.NameMistralAI},
		PricePerInputTokenUSD:  2e-6,
		PricePerOutputTokenUSD: 6e-6,
	},
}
