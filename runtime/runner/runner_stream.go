package runner

import (
	"context"
	"strings"
	"time"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/model"
)

// Stream runs the same pipeline as Complete but delivers incremental chunks
// to send as they arrive from the provider, finishing with exactly one
// OutputChunk carrying the finalized AgentCompletion. Fallback to the next
// candidate is only attempted while no chunk has yet reached send: once
// partial content has been delivered to the caller, a mid-stream failure
// can no longer be silently retried against a different provider.
func (r *Runner) Stream(ctx context.Context, req *Request, send func(OutputChunk) error) error {
	ctx, span := r.tracer.Start(ctx, "runner.Stream")
	defer span.End()

	info, version, versionID, err := r.sanitize(req)
	if err != nil {
		return err
	}

	rendered, input, inputID, err := r.render(ctx, req)
	if err != nil {
		return err
	}

	if req.UseCache {
		if hit, ok, cerr := lookupWithTimeout(ctx, r.cache, versionID, inputID); cerr != nil {
			r.logger.Warn(ctx, "cache lookup failed, falling through to a live completion", "error", cerr)
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
			return send(OutputChunk{Completion: &completion})
		}
	}

	attempts, err := r.buildAttempts(req, info)
	if err != nil {
		return err
	}

	start := time.Now()
	acc := &streamAccumulator{}
	used, dispatchErr := r.dispatchStream(ctx, req, attempts, version, rendered, acc, send)

	var resp *model.Response
	if dispatchErr == nil {
		resp = acc.toResponse()
	}

	completion, finalizeErr := r.finalize(req, input, version, rendered, resp, used, dispatchErr, time.Since(start))
	if finalizeErr != nil {
		return finalizeErr
	}
	r.emit(ctx, completion)

	if err := send(OutputChunk{Completion: completion}); err != nil {
		return err
	}
	if dispatchErr != nil {
		return dispatchErr
	}
	return nil
}

// dispatchStream mirrors dispatch's attempt loop for the streaming path. It
// advances to the next candidate on a retryable failure only if no chunk
// from the failed attempt was ever handed to send.
func (r *Runner) dispatchStream(ctx context.Context, req *Request, attempts []attempt, version domain.Version, rendered []*model.Message, acc *streamAccumulator, send func(OutputChunk) error) (attempt, *apierror.Error) {
	var lastErr *apierror.Error
	for i, a := range attempts {
		server, ok := r.servers[a.pname]
		if !ok {
			lastErr = apierror.Newf(apierror.KindInternal, "no server configured for provider %q", a.pname)
			continue
		}

		modelReq := buildModelRequest(req, version, a, rendered, true)

		sentAny := false
		err := server.Stream(ctx, modelReq, func(ch model.Chunk) error {
			acc.apply(ch)
			sentAny = true
			return send(OutputChunk{Delta: &ch})
		})
		if err == nil {
			return a, nil
		}

		classified := classifyError(err)
		r.logger.Warn(ctx, "provider stream attempt failed", "provider", string(a.pname), "model", a.info.ID, "error", err)
		if sentAny {
			return a, classified
		}

		lastErr = classified
		moreLeft := i < len(attempts)-1
		if !moreLeft || !req.UseFallback.Allowed() || !classified.RetryableByFallback() {
			return a, classified
		}
		acc.reset()
	}
	return attempt{}, lastErr
}

// streamAccumulator reassembles a model.Response from the sequence of chunks
// a streaming attempt emits, so Stream can run the same finalize logic as
// Complete once a stream finishes successfully.
type streamAccumulator struct {
	text       strings.Builder
	toolCalls  []model.ToolCall
	usage      model.TokenUsage
	stopReason string
}

func (a *streamAccumulator) apply(ch model.Chunk) {
	switch ch.Type {
	case model.ChunkTypeText:
		if ch.Message == nil {
			return
		}
		for _, p := range ch.Message.Parts {
			if tp, ok := p.(model.TextPart); ok {
				a.text.WriteString(tp.Text)
			}
		}
	case model.ChunkTypeToolCall:
		if ch.ToolCall != nil {
			a.toolCalls = append(a.toolCalls, *ch.ToolCall)
		}
	case model.ChunkTypeUsage:
		if ch.UsageDelta != nil {
			a.usage = *ch.UsageDelta
		}
	case model.ChunkTypeStop:
		a.stopReason = ch.StopReason
	}
}

func (a *streamAccumulator) reset() {
	a.text.Reset()
	a.toolCalls = nil
	a.usage = model.TokenUsage{}
	a.stopReason = ""
}

func (a *streamAccumulator) toResponse() *model.Response {
	return &model.Response{
		Content: []model.Message{{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: a.text.String()}},
		}},
		ToolCalls:  a.toolCalls,
		Usage:      a.usage,
		StopReason: a.stopReason,
	}
}
