package openai

import (
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/anotherai/gateway/runtime/model"
)

// streamer adapts an openai-go SSE stream to model.Streamer, accumulating
// tool-call argument fragments across chunks and translating each OpenAI
// stream event into at most one model.Chunk.
type streamer struct {
	sse        *ssestream.Stream[openai.ChatCompletionChunk]
	toolArgs   map[int64]*strings.Builder
	meta       map[string]any
	modelID    string
	modelClass model.ModelClass
}

func newStreamer(sse *ssestream.Stream[openai.ChatCompletionChunk], modelID string, modelClass model.ModelClass) *streamer {
	return &streamer{
		sse:        sse,
		toolArgs:   make(map[int64]*strings.Builder),
		meta:       make(map[string]any),
		modelID:    modelID,
		modelClass: modelClass,
	}
}

func (s *streamer) Recv() (model.Chunk, error) {
	if !s.sse.Next() {
		if err := s.sse.Err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	}
	chunk := s.sse.Current()
	if len(chunk.Choices) == 0 {
		if chunk.Usage.TotalTokens > 0 {
			return model.Chunk{
				Type: model.ChunkTypeUsage,
				UsageDelta: &model.TokenUsage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:  int(chunk.Usage.TotalTokens),
					Model:        s.modelID,
					ModelClass:   s.modelClass,
				},
			}, nil
		}
		return model.Chunk{}, nil
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		return model.Chunk{Type: model.ChunkTypeStop, StopReason: choice.FinishReason}, nil
	}
	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		b, ok := s.toolArgs[tc.Index]
		if !ok {
			b = &strings.Builder{}
			s.toolArgs[tc.Index] = b
		}
		b.WriteString(tc.Function.Arguments)
		return model.Chunk{
			Type: model.ChunkTypeToolCallDelta,
			ToolCallDelta: &model.ToolCallDelta{
				Name:  model.ToolIdent(tc.Function.Name),
				ID:    tc.ID,
				Delta: tc.Function.Arguments,
			},
		}, nil
	}
	if choice.Delta.Content != "" {
		return model.Chunk{
			Type: model.ChunkTypeText,
			Message: &model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: choice.Delta.Content}},
			},
		}, nil
	}
	return model.Chunk{}, nil
}

func (s *streamer) Close() error {
	return s.sse.Close()
}

func (s *streamer) Metadata() map[string]any {
	return s.meta
}
