// Package eventbus is the at-least-once task queue the Completion Runner and
// the security/billing surfaces enqueue work onto: persisting a completion,
// decrementing credits, running an experiment completion, and the like never
// block the caller's response on their own completion. Two Broker
// implementations share one task-registration and retry surface: an
// in-process buffered-channel broker for single-process deployments, and a
// goa.design/pulse/Redis-backed broker for multi-process ones.
package eventbus
