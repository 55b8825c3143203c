package eventbus

import "context"

// TaskFunc processes one published Event. A returned error that unwraps to
// an *apierror.Error with Fatal set is never retried; any other error is
// retried up to the broker's retry budget.
type TaskFunc func(ctx context.Context, event Event) error

// TaskOptions configures how a registered task's failures are treated.
type TaskOptions struct {
	// Fatal, when true, marks every failure from this task as non-retryable
	// regardless of the error's own Fatal flag.
	Fatal bool
}

// Broker is the at-least-once task queue the runner, security, and billing
// surfaces publish onto. Registered tasks are invoked by name so a single
// EventType can fan out to more than one task (e.g. EventStoreCompletion
// persists the completion and separately decrements credits).
type Broker interface {
	// RegisterTask associates name with fn for every Event of the given
	// type. Multiple tasks may be registered for the same EventType; each
	// runs independently with its own retry budget.
	RegisterTask(name string, eventType EventType, fn TaskFunc, opts TaskOptions)

	// Publish enqueues event for asynchronous processing. It does not wait
	// for registered tasks to run.
	Publish(ctx context.Context, event Event) error

	// Close stops accepting new events and waits for in-flight tasks to
	// drain, or ctx to expire, whichever comes first.
	Close(ctx context.Context) error
}
