package model

import (
	"errors"
	"fmt"
)

// ProviderErrorKind buckets a provider failure into the handful of
// categories the attempt loop actually branches on: retry the same
// provider, fall back to the next candidate, or give up.
type ProviderErrorKind string

const (
	// ProviderErrorKindAuth means the provider rejected our credentials.
	// Falling back to another provider in the same request won't help;
	// the deployment's configuration needs fixing.
	ProviderErrorKindAuth ProviderErrorKind = "auth"

	// ProviderErrorKindInvalidRequest means the provider rejected the
	// request shape itself (bad model id, unsupported parameter). Retrying
	// verbatim against any provider will fail the same way.
	ProviderErrorKindInvalidRequest ProviderErrorKind = "invalid_request"

	// ProviderErrorKindRateLimited means the provider throttled us.
	ProviderErrorKindRateLimited ProviderErrorKind = "rate_limited"

	// ProviderErrorKindUnavailable covers 5xx responses and transport
	// failures where a retry, possibly against a fallback, may succeed.
	ProviderErrorKindUnavailable ProviderErrorKind = "unavailable"

	// ProviderErrorKindUnknown is anything that didn't fit the above.
	ProviderErrorKindUnknown ProviderErrorKind = "unknown"
)

// ProviderError carries structured detail about a provider-side failure
// across the adapter boundary, so the runner and the HTTP layer can make
// retry/fallback decisions and surface a provider request id in error
// responses without parsing adapter-specific error strings.
type ProviderError struct {
	provider  string
	operation string
	http      int
	kind      ProviderErrorKind
	code      string
	message   string
	requestID string
	retryable bool
	cause     error
}

// NewProviderError builds a ProviderError. provider and kind are required;
// everything else may be zero-valued when the adapter doesn't have it.
func NewProviderError(provider, operation string, httpStatus int, kind ProviderErrorKind, code, message, requestID string, retryable bool, cause error) *ProviderError {
	if provider == "" {
		panic("model: provider error requires a provider name")
	}
	if kind == "" {
		panic("model: provider error requires a kind")
	}
	return &ProviderError{
		provider:  provider,
		operation: operation,
		http:      httpStatus,
		kind:      kind,
		code:      code,
		message:   message,
		requestID: requestID,
		retryable: retryable,
		cause:     cause,
	}
}

// Provider returns the adapter's name, e.g. "bedrock".
func (e *ProviderError) Provider() string { return e.provider }

// Operation names the provider call that failed, e.g. "converse_stream".
func (e *ProviderError) Operation() string { return e.operation }

// HTTPStatus returns the provider's HTTP status, or 0 when not applicable.
func (e *ProviderError) HTTPStatus() int { return e.http }

// Kind returns the coarse classification used for retry/fallback routing.
func (e *ProviderError) Kind() ProviderErrorKind { return e.kind }

// Code returns the provider-specific error code, if the adapter set one.
func (e *ProviderError) Code() string { return e.code }

// Message returns the provider's own error message, if available.
func (e *ProviderError) Message() string { return e.message }

// RequestID returns the provider's request id, for support escalations.
func (e *ProviderError) RequestID() string { return e.requestID }

// Retryable reports whether the same request might succeed on retry.
func (e *ProviderError) Retryable() bool { return e.retryable }

func (e *ProviderError) Error() string {
	op := e.operation
	if op == "" {
		op = "request"
	}
	status := ""
	if e.http > 0 {
		status = fmt.Sprintf("%d ", e.http)
	}
	code := ""
	if e.code != "" {
		code = e.code + ": "
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s %s(%s): %s", e.provider, e.kind, status, op, code+msg)
}

// Unwrap exposes the underlying adapter/SDK error for errors.Is/As.
func (e *ProviderError) Unwrap() error { return e.cause }

// AsProviderError returns the first *ProviderError in err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
