package runner

import (
	"context"
	"time"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/eventbus"
	"github.com/anotherai/gateway/runtime/gateway"
	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/provider"
	"github.com/anotherai/gateway/runtime/render"
	"github.com/anotherai/gateway/runtime/telemetry"
)

// Runner is the Completion Runner: it renders a request, resolves a model to
// a priority-ordered list of (model, provider) candidates, dispatches through
// each candidate's gateway.Server with fallback on a transient failure, and
// always emits exactly one domain.AgentCompletion on the event bus.
type Runner struct {
	registry *provider.Registry
	servers  map[provider.Name]*gateway.Server
	catalog  *Catalog
	cache    Cache
	broker   eventbus.Broker
	fileRefs *render.FileRefResolver
	logger   telemetry.Logger
	tracer   telemetry.Tracer
}

// Option configures a Runner during construction.
type Option func(*Runner)

// WithLogger overrides the Runner's logger. Default is a no-op.
func WithLogger(l telemetry.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithTracer overrides the Runner's tracer. Default is a no-op.
func WithTracer(t telemetry.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// WithCache overrides the Runner's Cache. Default is NoopCache{}, always
// missing, for deployments with no analytical store wired.
func WithCache(c Cache) Option { return func(r *Runner) { r.cache = c } }

// WithFileRefResolver resolves templated data:/url file references in
// rendered messages into concrete image/document parts before dispatch
// (spec §4.3). Default is nil, which leaves rendered messages untouched.
func WithFileRefResolver(f *render.FileRefResolver) Option {
	return func(r *Runner) { r.fileRefs = f }
}

// NewRunner constructs a Runner. registry supplies the provider adapters
// backing servers (one Server per registered provider.Name, each wrapping
// that provider's model.Client with the gateway's rate-limit/log/trace
// middleware); catalog resolves model ids; broker publishes the completion
// event once per request.
func NewRunner(registry *provider.Registry, servers map[provider.Name]*gateway.Server, catalog *Catalog, broker eventbus.Broker, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		servers:  servers,
		catalog:  catalog,
		cache:    NoopCache{},
		broker:   broker,
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// attempt is one (model, provider) pair the attempt loop may try, in the
// order they should be tried.
type attempt struct {
	info  *ModelInfo
	pname provider.Name
}

// Complete runs the full pipeline for a unary request: sanitize, render,
// cache lookup, provider selection, attempt loop with fallback, finalize, and
// emit. It returns a non-nil *domain.AgentCompletion once sanitation,
// rendering and candidate selection succeed, even on a terminal provider
// failure, so the caller can surface both the completion record and the
// error; the exception is a failure to build the completion record itself.
func (r *Runner) Complete(ctx context.Context, req *Request) (*domain.AgentCompletion, error) {
	ctx, span := r.tracer.Start(ctx, "runner.Complete")
	defer span.End()

	info, version, versionID, err := r.sanitize(req)
	if err != nil {
		return nil, err
	}

	rendered, input, inputID, err := r.render(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.UseCache {
		if hit, ok, err := lookupWithTimeout(ctx, r.cache, versionID, inputID); err != nil {
			r.logger.Warn(ctx, "cache lookup failed, falling through to a live completion", "error", err)
		} else if ok {
			completion := *hit
			id, err := domain.NewCompletionID()
			if err == nil {
				completion.ID = id
			}
			completion.FromCache = true
			completion.TenantUID = req.TenantUID
			completion.Source = req.Source
			r.emit(ctx, &completion)
			return &completion, nil
		}
	}

	attempts, err := r.buildAttempts(req, info)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, used, lastErr := r.dispatch(ctx, req, attempts, version, rendered)

	completion, finalizeErr := r.finalize(req, input, version, rendered, resp, used, lastErr, time.Since(start))
	if finalizeErr != nil {
		return nil, finalizeErr
	}
	r.emit(ctx, completion)

	if lastErr != nil {
		return completion, lastErr
	}
	return completion, nil
}

// sanitize resolves req.Model against the catalog and builds the content
// addressed Version (spec §4.1 step 1).
func (r *Runner) sanitize(req *Request) (*ModelInfo, domain.Version, string, error) {
	info, err := r.catalog.Resolve(req.Model)
	if err != nil {
		return nil, domain.Version{}, "", err
	}

	reasoningBudget := req.ReasoningBudget
	reasoningEffort := req.ReasoningEffort
	if info.ReasoningBudget != nil && (reasoningEffort != "" || reasoningBudget > 0) {
		clamped, ok := info.ReasoningBudget.Clamp(reasoningEffort, reasoningBudget)
		if !ok {
			reasoningEffort, reasoningBudget = "", 0
		} else {
			reasoningBudget = clamped
		}
	} else {
		reasoningEffort, reasoningBudget = "", 0
	}

	toolNames := make([]string, len(req.Tools))
	for i, t := range req.Tools {
		toolNames[i] = t.Name
	}

	version := domain.Version{
		Model:            info.ID,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Tools:            toolNames,
		ToolChoice:       req.ToolChoice,
		ResponseSchema:   req.ResponseSchema,
		ReasoningEffort:  reasoningEffort,
		ReasoningBudget:  reasoningBudget,
	}
	versionID, err := domain.ComputeVersionID(version)
	if err != nil {
		return nil, domain.Version{}, "", apierror.Wrap(apierror.KindInternal, "compute version id", err)
	}
	version.ID = versionID
	return info, version, versionID, nil
}

// render expands template variables into the prompt messages and computes
// the content-addressed Input (spec §4.1 step 2).
func (r *Runner) render(ctx context.Context, req *Request) ([]*model.Message, domain.Input, string, error) {
	rendered, err := render.Render(ctx, req.Variables, req.Messages)
	if err != nil {
		return nil, domain.Input{}, "", err
	}
	if r.fileRefs != nil {
		rendered, err = r.fileRefs.Resolve(ctx, rendered)
		if err != nil {
			return nil, domain.Input{}, "", err
		}
	}

	originalMaps, err := messagesToMaps(req.Messages)
	if err != nil {
		return nil, domain.Input{}, "", apierror.Wrap(apierror.KindInternal, "encode input messages", err)
	}
	input := domain.Input{
		AgentID:   req.AgentID,
		Messages:  originalMaps,
		Variables: req.Variables,
	}
	inputID, err := domain.ComputeInputID(input)
	if err != nil {
		return nil, domain.Input{}, "", apierror.Wrap(apierror.KindInternal, "compute input id", err)
	}
	input.ID = inputID
	return rendered, input, inputID, nil
}

// buildAttempts computes the ordered list of (model, provider) candidates to
// try, honoring req.UseFallback (spec §4.1 step 4 and §7's fallback modes).
func (r *Runner) buildAttempts(req *Request, info *ModelInfo) ([]attempt, error) {
	candidates, err := r.registry.CandidatesForModel(info.ID, req.Provider)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidRunOptions, err.Error(), err)
	}

	primary := attempt{info: info, pname: candidates[0]}

	switch req.UseFallback.Mode {
	case domain.FallbackModeNever:
		return []attempt{primary}, nil

	case domain.FallbackModeModels:
		attempts := []attempt{primary}
		for _, m := range req.UseFallback.Models {
			fi, err := r.catalog.Resolve(m)
			if err != nil {
				continue
			}
			fc, err := r.registry.CandidatesForModel(fi.ID, "")
			if err != nil || len(fc) == 0 {
				continue
			}
			attempts = append(attempts, attempt{info: fi, pname: fc[0]})
		}
		return attempts, nil

	default: // domain.FallbackModeAuto, or the zero value
		attempts := make([]attempt, len(candidates))
		for i, c := range candidates {
			attempts[i] = attempt{info: info, pname: c}
		}
		return attempts, nil
	}
}

// dispatch runs the attempt loop: it tries each candidate in order,
// classifying failures and advancing to the next candidate only when the
// failure is retryable-by-fallback and fallback is allowed (spec §4.1 step 5).
func (r *Runner) dispatch(ctx context.Context, req *Request, attempts []attempt, version domain.Version, rendered []*model.Message) (*model.Response, attempt, *apierror.Error) {
	var lastErr *apierror.Error
	for i, a := range attempts {
		server, ok := r.servers[a.pname]
		if !ok {
			lastErr = apierror.Newf(apierror.KindInternal, "no server configured for provider %q", a.pname)
			continue
		}

		modelReq := buildModelRequest(req, version, a, rendered, false)

		resp, err := server.Complete(ctx, modelReq)
		if err == nil {
			return resp, a, nil
		}

		classified := classifyError(err)
		lastErr = classified
		r.logger.Warn(ctx, "provider attempt failed", "provider", string(a.pname), "model", a.info.ID, "error", err)

		moreLeft := i < len(attempts)-1
		if !moreLeft || !req.UseFallback.Allowed() || !classified.RetryableByFallback() {
			return nil, a, classified
		}
	}
	return nil, attempt{}, lastErr
}

// finalize builds the domain.AgentCompletion for a completed or failed
// attempt loop (spec §4.1 step 6).
func (r *Runner) finalize(req *Request, input domain.Input, version domain.Version, rendered []*model.Message, resp *model.Response, used attempt, dispatchErr *apierror.Error, duration time.Duration) (*domain.AgentCompletion, error) {
	id, err := domain.NewCompletionID()
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "generate completion id", err)
	}

	renderedMaps, err := messagesToMaps(rendered)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "encode rendered messages", err)
	}

	completion := &domain.AgentCompletion{
		ID:               id,
		TenantUID:        req.TenantUID,
		AgentID:          req.AgentID,
		Input:            input,
		Version:          version,
		RenderedMessages: renderedMaps,
		DurationSeconds:  duration.Seconds(),
		Source:           req.Source,
		PreserveCredits:  req.PreserveCredits,
		Metadata:         req.Metadata,
	}

	if dispatchErr != nil {
		msg := dispatchErr.Error()
		completion.Status = domain.CompletionFailure
		completion.Output = domain.Output{Error: &msg}
		return completion, nil
	}

	outputMessages := make([]map[string]any, len(resp.Content))
	for i, m := range resp.Content {
		msg := m
		encoded, err := messagesToMaps([]*model.Message{&msg})
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "encode output message", err)
		}
		outputMessages[i] = encoded[0]
	}

	completion.Status = domain.CompletionSuccess
	completion.Output = domain.Output{Messages: outputMessages}

	usage := domain.InferenceUsage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}
	cost := float64(usage.PromptTokens)*used.info.PricePerInputTokenUSD +
		float64(usage.CompletionTokens)*used.info.PricePerOutputTokenUSD
	completion.CostUSD = cost
	completion.Traces = []domain.Trace{{
		Kind:            domain.TraceKindLLM,
		DurationSeconds: duration.Seconds(),
		CostUSD:         cost,
		LLM: &domain.LLMTrace{
			Model:    used.info.ID,
			Provider: string(used.pname),
			Usage:    usage,
		},
	}}

	for _, tc := range resp.ToolCalls {
		toolReq, err := toolCallRequest(tc)
		if err != nil {
			r.logger.Warn(context.Background(), "failed to format tool call", "error", err)
			continue
		}
		completion.Traces = append(completion.Traces, domain.Trace{
			Kind: domain.TraceKindTool,
			Tool: &domain.ToolTrace{Request: toolReq},
		})
	}

	return completion, nil
}

// emit publishes the StoreCompletionEvent for completion onto the event bus.
// Publishing is best-effort and never blocks the caller on broker backpressure
// beyond the broker's own bounded queue; failures are logged, not returned,
// since the request has already completed from the caller's perspective.
func (r *Runner) emit(ctx context.Context, completion *domain.AgentCompletion) {
	if err := r.broker.Publish(ctx, eventbus.Event{Type: eventbus.EventStoreCompletion, Payload: completion}); err != nil {
		r.logger.Error(ctx, "failed to publish completion event", "completion_id", completion.ID.String(), "error", err)
	}
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func thinkingOptions(v domain.Version) *model.ThinkingOptions {
	if v.ReasoningEffort == "" && v.ReasoningBudget == 0 {
		return nil
	}
	return &model.ThinkingOptions{Enable: true, BudgetTokens: v.ReasoningBudget}
}

// buildModelRequest translates a Request plus its resolved attempt and
// rendered messages into the provider-agnostic model.Request sent to a
// gateway.Server.
func buildModelRequest(req *Request, version domain.Version, a attempt, rendered []*model.Message, stream bool) *model.Request {
	modelReq := &model.Request{
		Model:      a.info.ID,
		Messages:   rendered,
		Tools:      req.Tools,
		ToolChoice: toolChoiceToModel(req.ToolChoice),
		MaxTokens:  intOrZero(version.MaxTokens),
		Thinking:   thinkingOptions(version),
		Stream:     stream,
	}
	if version.Temperature != nil {
		modelReq.Temperature = *version.Temperature
	}
	return modelReq
}
