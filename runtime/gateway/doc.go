// Package gateway provides a transport-agnostic composable handler for model
// completion requests. It exposes an ordered middleware chain for both unary
// and streaming completions, so the Completion Runner can layer adaptive rate
// limiting, structured logging, and tracing around a provider model.Client
// without any of those concerns leaking into the runner's own algorithm.
package gateway
