// Package apierror defines the gateway's error taxonomy: a small, stable set
// of Kind values mapped to HTTP status codes and a retryable-by-fallback
// flag, matching runtime/model.ProviderError's approach of a sentinel error
// set with typed accessors and wrapping.
package apierror

import "fmt"

// Kind classifies a gateway-facing failure into one of a fixed set of
// categories used both for the HTTP status code and for the Completion
// Runner's fallback decision.
type Kind string

const (
	// KindInvalidRunOptions indicates an unknown model/provider or invalid
	// run options.
	KindInvalidRunOptions Kind = "invalid_run_options"

	// KindBadRequest indicates a missing template variable or invalid id.
	KindBadRequest Kind = "bad_request"

	// KindInvalidFile indicates an unsupported file url or data value.
	KindInvalidFile Kind = "invalid_file"

	// KindEntityTooLarge indicates an upload exceeding the size limit.
	KindEntityTooLarge Kind = "entity_too_large"

	// KindInvalidToken indicates a JWT or API-key verification failure.
	KindInvalidToken Kind = "invalid_token"

	// KindObjectNotFound indicates a missing entity, typed by ObjectType.
	KindObjectNotFound Kind = "object_not_found"

	// KindDuplicateValue indicates an idempotency conflict.
	KindDuplicateValue Kind = "duplicate_value"

	// KindProviderTransient indicates a retryable provider failure: rate
	// limiting, network errors, or 5xx responses.
	KindProviderTransient Kind = "provider_transient"

	// KindProviderTerminal indicates a non-retryable provider failure such
	// as a content-safety block, auth failure, or quota exhaustion. Its
	// HTTP status passes through from the provider response.
	KindProviderTerminal Kind = "provider_terminal"

	// KindInternal indicates an unclassified internal failure. Retryable by
	// fallback unless the error is also marked Fatal.
	KindInternal Kind = "internal"

	// KindCreditExhausted indicates the tenant's credit balance is at or
	// below zero and a payment failure is on record; the credit gate (C10)
	// rejects the request before it reaches the runner.
	KindCreditExhausted Kind = "credit_exhausted"
)

// httpStatus maps each Kind to its default HTTP status code. KindProviderTerminal
// defaults to 502 here; callers that pass through the provider's own status
// override it with WithStatus.
var httpStatus = map[Kind]int{
	KindInvalidRunOptions: 400,
	KindBadRequest:        400,
	KindInvalidFile:       400,
	KindEntityTooLarge:    413,
	KindInvalidToken:      401,
	KindObjectNotFound:    404,
	KindDuplicateValue:    409,
	KindProviderTransient: 500,
	KindProviderTerminal:  502,
	KindInternal:          500,
	KindCreditExhausted:   402,
}

// retryableByFallback reports whether the Completion Runner's attempt loop
// should try the next fallback model/provider on this Kind, rather than
// failing the request outright.
var retryableByFallback = map[Kind]bool{
	KindProviderTransient: true,
}

// Error is the gateway's typed, HTTP-facing error. It carries enough
// structure for the HTTP layer to emit {error:{code,message,status_code}}
// without re-deriving the status from the message text.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int

	// ObjectType further types a KindObjectNotFound error (e.g. "agent",
	// "version", "completion").
	ObjectType string

	// Fatal marks a background-task error as non-retryable regardless of
	// Kind, per spec §4.4's fatal/retryable task split.
	Fatal bool

	cause error
}

// New constructs an Error for kind with the given message. The HTTP status
// code is looked up from kind's default unless overridden with WithStatus.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: httpStatus[kind]}
}

// Newf is New with fmt.Sprintf-style formatting of message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs an Error for kind that preserves cause in its chain via
// Unwrap, so callers can still errors.Is/As against the original failure.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

// WithStatus overrides the default HTTP status code, used for
// KindProviderTerminal errors that pass through a provider's own status.
func (e *Error) WithStatus(status int) *Error {
	e.StatusCode = status
	return e
}

// WithObjectType sets ObjectType and returns e for chaining.
func (e *Error) WithObjectType(objectType string) *Error {
	e.ObjectType = objectType
	return e
}

// WithFatal marks e as fatal (no task retry) and returns e for chaining.
func (e *Error) WithFatal() *Error {
	e.Fatal = true
	return e
}

func (e *Error) Error() string {
	if e.ObjectType != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.ObjectType, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any, to preserve the error chain.
func (e *Error) Unwrap() error { return e.cause }

// RetryableByFallback reports whether the Completion Runner should attempt
// the next fallback model/provider rather than failing the request.
func (e *Error) RetryableByFallback() bool {
	return retryableByFallback[e.Kind]
}

// BadRequest constructs a KindBadRequest error, the common case for a
// missing template variable or invalid identifier.
func BadRequest(format string, args ...any) *Error {
	return Newf(KindBadRequest, format, args...)
}

// NotFound constructs a KindObjectNotFound error typed by objectType.
func NotFound(objectType, format string, args ...any) *Error {
	return Newf(KindObjectNotFound, format, args...).WithObjectType(objectType)
}

// DuplicateValue constructs a KindDuplicateValue error for an idempotency
// conflict (e.g. re-invoking start_completion on an already in-flight pair).
func DuplicateValue(format string, args ...any) *Error {
	return Newf(KindDuplicateValue, format, args...)
}

// CreditExhausted constructs a KindCreditExhausted error for tenantUID,
// raised by the credit gate when a billable request arrives with a
// non-positive balance and a recorded payment failure.
func CreditExhausted(tenantUID int64) *Error {
	return Newf(KindCreditExhausted, "tenant %d has no remaining credit", tenantUID)
}
