package runner

import (
	"encoding/json"
	"fmt"

	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/provider"
)

// Request is the Completion Runner's input contract: the OpenAI-compatible
// completion fields plus the gateway's own extensions (spec §4.1's
// "Inputs" list).
type Request struct {
	AgentID string

	// Model is the catalog model id to resolve, e.g. "gpt-4o".
	Model string

	// Provider optionally pins a single provider, bypassing the priority
	// order computed from the model's declared providers.
	Provider provider.Name

	// UseFallback controls whether a transient failure advances to the next
	// candidate provider. Zero value is domain.AutoFallback.
	UseFallback domain.FallbackOption

	// UseCache selects whether a prior completion for the same
	// (version, input) pair may be returned without invoking a provider.
	UseCache bool

	Messages    []*model.Message
	Variables   map[string]any
	Temperature *float32
	TopP        *float32
	MaxTokens   *int

	FrequencyPenalty *float32
	PresencePenalty  *float32

	Tools      []*model.ToolDefinition
	ToolChoice *domain.ToolChoice

	ResponseSchema map[string]any

	ReasoningEffort domain.ReasoningEffort
	ReasoningBudget int

	Source          domain.CompletionSource
	TenantUID       int64
	PreserveCredits bool
	Metadata        map[string]any
}

// OutputChunk is one streamed increment of a completion: either partial
// content or, on the final chunk, the fully assembled AgentCompletion. Stream
// callers receive exactly one chunk with Completion set, always last.
type OutputChunk struct {
	Delta      *model.Chunk
	Completion *domain.AgentCompletion
}

// toolChoiceToModel translates the runner's provider-agnostic ToolChoice into
// the model package's wire representation, normalizing "required" to the
// provider adapter's own spelling internally.
func toolChoiceToModel(tc *domain.ToolChoice) *model.ToolChoice {
	if tc == nil {
		return nil
	}
	mode := model.ToolChoiceMode(tc.Mode)
	switch tc.Mode {
	case domain.ToolChoiceRequired:
		mode = model.ToolChoiceModeAny
	case domain.ToolChoiceNamed:
		mode = model.ToolChoiceModeTool
	}
	return &model.ToolChoice{Mode: mode, Name: tc.Name}
}

// messagesToMaps converts rendered model messages into the
// []map[string]any shape domain.Input/Output/AgentCompletion.RenderedMessages
// store, round-tripping through Message's own JSON codec so the typed Part
// union survives as a discriminated map rather than losing structure.
func messagesToMaps(msgs []*model.Message) ([]map[string]any, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	out := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal message[%d]: %w", i, err)
		}
		var asMap map[string]any
		if err := json.Unmarshal(raw, &asMap); err != nil {
			return nil, fmt.Errorf("unmarshal message[%d]: %w", i, err)
		}
		out[i] = asMap
	}
	return out, nil
}

// toolCallRequest converts a provider-returned model.ToolCall into the
// domain-level echo, synthesizing an id when the provider didn't supply one.
func toolCallRequest(tc model.ToolCall) (domain.ToolCallRequest, error) {
	var input map[string]any
	if len(tc.Payload) > 0 {
		if err := json.Unmarshal(tc.Payload, &input); err != nil {
			return domain.ToolCallRequest{}, fmt.Errorf("decode tool call payload: %w", err)
		}
	}
	id := tc.ID
	if id == "" {
		hash, err := domain.HashObject(input)
		if err != nil {
			return domain.ToolCallRequest{}, fmt.Errorf("hash tool input: %w", err)
		}
		id = fmt.Sprintf("%s_%s", tc.Name, hash)
	}
	return domain.ToolCallRequest{ID: id, ToolName: string(tc.Name), ToolInput: input}, nil
}
