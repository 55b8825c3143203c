// Package runner implements the Completion Runner: it renders a templated
// prompt, resolves a model id to a candidate provider list, dispatches the
// request through each candidate's gateway.Server in priority order with
// fallback on transient failure, and emits exactly one domain.AgentCompletion
// via the event bus whether the provider attempts succeed or fail. A request
// rejected before dispatch (unknown model, render failure, no candidate
// provider) returns its error and emits no completion.
package runner
