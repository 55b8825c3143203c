package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/eventbus"
	"github.com/anotherai/gateway/runtime/gateway"
	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/provider"
)

type fakeClient struct {
	completeFn func(ctx context.Context, req *model.Request) (*model.Response, error)
}

func (f *fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return f.completeFn(ctx, req)
}

func (f *fakeClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

type fakeAdapter struct {
	model.Client
	defaultModel string
}

func (f fakeAdapter) DefaultModel() string  { return f.defaultModel }
func (f fakeAdapter) RequiredEnv() []string { return nil }

func okMessage(text string) *model.Message {
	return &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}}
}

func newTestRunner(t *testing.T, providers map[provider.Name]*fakeClient, modelProviders map[string][]provider.Name) (*Runner, *eventbus.MemoryBroker) {
	t.Helper()

	reg := provider.NewRegistry()
	servers := make(map[provider.Name]*gateway.Server)
	for name, client := range providers {
		srv, err := gateway.NewServer(gateway.WithProvider(client))
		if err != nil {
			t.Fatalf("NewServer: %v", err)
		}
		servers[name] = srv
	}
	for modelID, names := range modelProviders {
		for _, name := range names {
			reg.Register(name, fakeAdapter{Client: providers[name], defaultModel: modelID}, []string{modelID})
		}
	}

	catalog := NewCatalog()
	catalog.Register(&ModelInfo{
		ID:                     "gpt-4o",
		Providers:              modelProviders["gpt-4o"],
		PricePerInputTokenUSD:  1e-6,
		PricePerOutputTokenUSD: 2e-6,
	})

	broker := eventbus.NewMemoryBroker(eventbus.MemoryBrokerOptions{Workers: 1})
	return NewRunner(reg, servers, catalog, broker), broker
}

func TestRunner_Complete_HappyPath(t *testing.T) {
	client := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		return &model.Response{
			Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "hi there"}}}},
			Usage:   model.TokenUsage{InputTokens: 10, OutputTokens: 5},
		}, nil
	}}
	r, broker := newTestRunner(t, map[provider.Name]*fakeClient{provider.NameOpenAI: client},
		map[string][]provider.Name{"gpt-4o": {provider.NameOpenAI}})
	defer func() { _ = broker.Close(context.Background()) }()

	req := &Request{
		AgentID:   "agent-1",
		Model:     "gpt-4o",
		Messages:  []*model.Message{okMessage("hello")},
		TenantUID: 1,
		Source:    domain.SourceAPI,
	}

	completion, err := r.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Status != domain.CompletionSuccess {
		t.Fatalf("got status %q", completion.Status)
	}
	if completion.CostUSD <= 0 {
		t.Fatalf("expected positive cost, got %v", completion.CostUSD)
	}
	if len(completion.Traces) != 1 || completion.Traces[0].LLM == nil {
		t.Fatalf("expected one LLM trace, got %+v", completion.Traces)
	}
	if completion.Traces[0].LLM.Provider != string(provider.NameOpenAI) {
		t.Fatalf("got provider %q", completion.Traces[0].LLM.Provider)
	}
}

func TestRunner_Complete_FallsBackOnTransientFailure(t *testing.T) {
	failing := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		return nil, model.ErrRateLimited
	}}
	succeeding := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		return &model.Response{
			Content: []model.Message{{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "ok"}}}},
			Usage:   model.TokenUsage{InputTokens: 1, OutputTokens: 1},
		}, nil
	}}
	// provider.Priority orders Groq before OpenAI, so Groq is attempted first.
	r, broker := newTestRunner(t, map[provider.Name]*fakeClient{
		provider.NameGroq:   failing,
		provider.NameOpenAI: succeeding,
	}, map[string][]provider.Name{"gpt-4o": {provider.NameGroq, provider.NameOpenAI}})
	defer func() { _ = broker.Close(context.Background()) }()

	req := &Request{
		AgentID:   "agent-1",
		Model:     "gpt-4o",
		Messages:  []*model.Message{okMessage("hello")},
		TenantUID: 1,
		Source:    domain.SourceAPI,
	}

	completion, err := r.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Status != domain.CompletionSuccess {
		t.Fatalf("got status %q", completion.Status)
	}
	if completion.Traces[0].LLM.Provider != string(provider.NameOpenAI) {
		t.Fatalf("expected fallback to openai, got %q", completion.Traces[0].LLM.Provider)
	}
}

func TestRunner_Complete_NeverFallbackStopsAtFirstFailure(t *testing.T) {
	failing := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		return nil, model.ErrRateLimited
	}}
	neverCalled := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		t.Fatal("should never be called when fallback is disabled")
		return nil, nil
	}}
	r, broker := newTestRunner(t, map[provider.Name]*fakeClient{
		provider.NameGroq:   failing,
		provider.NameOpenAI: neverCalled,
	}, map[string][]provider.Name{"gpt-4o": {provider.NameGroq, provider.NameOpenAI}})
	defer func() { _ = broker.Close(context.Background()) }()

	req := &Request{
		AgentID:     "agent-1",
		Model:       "gpt-4o",
		Messages:    []*model.Message{okMessage("hello")},
		UseFallback: domain.NeverFallback,
		TenantUID:   1,
		Source:      domain.SourceAPI,
	}

	completion, err := r.Complete(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error")
	}
	if completion.Status != domain.CompletionFailure {
		t.Fatalf("got status %q", completion.Status)
	}
}

func TestRunner_Complete_TerminalFailureIsNotRetried(t *testing.T) {
	calls := 0
	client := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		calls++
		return nil, apierror.New(apierror.KindProviderTerminal, "invalid api key").WithStatus(401)
	}}
	r, broker := newTestRunner(t, map[provider.Name]*fakeClient{provider.NameOpenAI: client},
		map[string][]provider.Name{"gpt-4o": {provider.NameOpenAI}})
	defer func() { _ = broker.Close(context.Background()) }()

	req := &Request{
		AgentID:   "agent-1",
		Model:     "gpt-4o",
		Messages:  []*model.Message{okMessage("hello")},
		TenantUID: 1,
		Source:    domain.SourceAPI,
	}

	completion, err := r.Complete(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
	if completion.Status != domain.CompletionFailure {
		t.Fatalf("got status %q", completion.Status)
	}
	if completion.Output.Error == nil {
		t.Fatal("expected Output.Error to be set")
	}
}

func TestRunner_Complete_UnknownModelFailsBeforeDispatch(t *testing.T) {
	client := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		t.Fatal("should never dispatch for an unknown model")
		return nil, nil
	}}
	r, broker := newTestRunner(t, map[provider.Name]*fakeClient{provider.NameOpenAI: client},
		map[string][]provider.Name{"gpt-4o": {provider.NameOpenAI}})
	defer func() { _ = broker.Close(context.Background()) }()

	req := &Request{AgentID: "agent-1", Model: "not-a-real-model", Messages: []*model.Message{okMessage("hi")}}
	_, err := r.Complete(context.Background(), req)

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierror.KindInvalidRunOptions {
		t.Fatalf("expected invalid_run_options, got %v", err)
	}
}

type stubCache struct {
	hit *domain.AgentCompletion
}

func (s stubCache) Lookup(context.Context, string, string) (*domain.AgentCompletion, bool, error) {
	if s.hit == nil {
		return nil, false, nil
	}
	return s.hit, true, nil
}

func TestRunner_Complete_CacheHitSkipsDispatch(t *testing.T) {
	client := &fakeClient{completeFn: func(context.Context, *model.Request) (*model.Response, error) {
		t.Fatal("should never dispatch on a cache hit")
		return nil, nil
	}}
	r, broker := newTestRunner(t, map[provider.Name]*fakeClient{provider.NameOpenAI: client},
		map[string][]provider.Name{"gpt-4o": {provider.NameOpenAI}})
	defer func() { _ = broker.Close(context.Background()) }()

	cached := &domain.AgentCompletion{Status: domain.CompletionSuccess, CostUSD: 0.5}
	r = NewRunner(r.registry, r.servers, r.catalog, r.broker, WithCache(stubCache{hit: cached}))

	req := &Request{AgentID: "agent-1", Model: "gpt-4o", Messages: []*model.Message{okMessage("hi")}, UseCache: true}
	completion, err := r.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !completion.FromCache {
		t.Fatal("expected FromCache to be true")
	}
	if completion.CostUSD != 0.5 {
		t.Fatalf("got cost %v", completion.CostUSD)
	}
}
