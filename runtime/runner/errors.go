package runner

import (
	"context"
	"errors"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/model"
)

// classifyError maps a provider adapter's returned error onto an
// apierror.Kind so the attempt loop can decide whether to advance to the
// next fallback candidate (see spec §4.1 step 5 and §7). An error that is
// already an *apierror.Error passes through unchanged: callers upstream of
// the provider (render, cache) already classified it correctly.
func classifyError(err error) *apierror.Error {
	if err == nil {
		return nil
	}

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.Canceled) {
		return apierror.Wrap(apierror.KindInternal, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Wrap(apierror.KindProviderTransient, "provider request timed out", err)
	}
	if errors.Is(err, model.ErrRateLimited) {
		return apierror.Wrap(apierror.KindProviderTransient, "provider rate limited the request", err)
	}
	if errors.Is(err, model.ErrStreamingUnsupported) {
		return apierror.Wrap(apierror.KindProviderTerminal, "provider does not support streaming", err)
	}

	if provErr, ok := model.AsProviderError(err); ok {
		return classifyProviderError(provErr)
	}

	return apierror.Wrap(apierror.KindInternal, "unclassified provider error", err)
}

// classifyProviderError maps a ProviderError's Kind onto apierror.Kind. Auth
// and invalid-request failures are never worth retrying against the same or
// a fallback provider within one request; rate-limited and unavailable are
// transient and drive the attempt loop to the next candidate. No adapter
// constructs a ProviderError today (they return model.ErrRateLimited and
// plain wrapped errors instead, handled above), but the branch stays for
// adapters that do report structured provider detail.
func classifyProviderError(pe *model.ProviderError) *apierror.Error {
	var kind apierror.Kind
	switch pe.Kind() {
	case model.ProviderErrorKindAuth, model.ProviderErrorKindInvalidRequest:
		kind = apierror.KindProviderTerminal
	case model.ProviderErrorKindRateLimited, model.ProviderErrorKindUnavailable:
		kind = apierror.KindProviderTransient
	default:
		if pe.Retryable() {
			kind = apierror.KindProviderTransient
		} else {
			kind = apierror.KindProviderTerminal
		}
	}

	e := apierror.Wrap(kind, pe.Message(), pe)
	if status := pe.HTTPStatus(); status > 0 {
		e = e.WithStatus(status)
	}
	return e
}
