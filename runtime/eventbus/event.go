package eventbus

import "encoding/json"

// EventType discriminates the fixed set of tasks the gateway registers on
// the bus (spec §4.4's task table).
type EventType string

const (
	// EventStoreCompletion fans out to two tasks: persisting the completion
	// (and its inputs/traces) and decrementing the tenant's credit balance.
	EventStoreCompletion EventType = "store_completion"

	// EventStartExperimentCompletion runs one completion inside an
	// experiment and records its output.
	EventStartExperimentCompletion EventType = "start_experiment_completion"

	// EventPaymentUpdated attempts a zero-amount credit decrement to
	// trigger a payment provider charge.
	EventPaymentUpdated EventType = "payment_updated"
)

// Event is one message published on the bus: a discriminated type plus an
// opaque payload each registered task decodes for itself.
type Event struct {
	Type    EventType
	Payload any
}

// DecodePayload decodes event's payload into out. MemoryBroker delivers
// Payload as the original typed value published by the caller; RedisBroker
// delivers it as a json.RawMessage after a publish/consume round trip
// through the Pulse stream. Round-tripping through json.Marshal here
// handles both uniformly, since json.RawMessage re-encodes to itself.
func (e Event) DecodePayload(out any) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
