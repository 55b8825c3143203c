package openaicompat

import (
	"testing"
)

func TestNew_RequiresProviderAndAPIKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error when provider is missing")
	}
	if _, err := New(Options{Provider: ProviderGroq}); err == nil {
		t.Fatal("expected error when api key is missing")
	}
}

func TestNew_AzureRequiresExplicitBaseURL(t *testing.T) {
	if _, err := New(Options{Provider: ProviderAzure, APIKey: "key", DefaultModel: "gpt-4o"}); err == nil {
		t.Fatal("expected error when azure base url is missing")
	}
	c, err := New(Options{
		Provider:     ProviderAzure,
		APIKey:       "key",
		BaseURL:      "https://my-resource.openai.azure.com/openai/deployments/my-deploy",
		DefaultModel: "gpt-4o",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.RequiredEnv(); len(got) != 1 || got[0] != "AZURE_OPENAI_API_KEY" {
		t.Fatalf("unexpected required env: %v", got)
	}
}

func TestNew_UsesDefaultBaseURLPerProvider(t *testing.T) {
	for provider, env := range map[Provider]string{
		ProviderGroq:      "GROQ_API_KEY",
		ProviderFireworks: "FIREWORKS_API_KEY",
		ProviderXAI:       "XAI_API_KEY",
		ProviderMistral:   "MISTRAL_API_KEY",
	} {
		c, err := New(Options{Provider: provider, APIKey: "key", DefaultModel: "m"})
		if err != nil {
			t.Fatalf("New(%s): %v", provider, err)
		}
		got := c.RequiredEnv()
		if len(got) != 1 || got[0] != env {
			t.Fatalf("provider %s: unexpected required env %v", provider, got)
		}
		if c.DefaultModel() != "m" {
			t.Fatalf("provider %s: unexpected default model %q", provider, c.DefaultModel())
		}
	}
}
