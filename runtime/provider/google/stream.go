package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/anotherai/gateway/runtime/model"
)

// contentIterator is the subset of *genai.GenerateContentResponseIterator
// used by the streamer, so tests can substitute a fake.
type contentIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// googleStreamer adapts a Gemini streaming iterator to model.Streamer.
type googleStreamer struct {
	iter       contentIterator
	nameMap    map[string]string
	modelID    string
	modelClass model.ModelClass

	mu       sync.Mutex
	pending  []model.Chunk
	done     bool
	finalErr error
	metadata map[string]any
}

func newGoogleStreamer(iter contentIterator, nameMap map[string]string, modelID string, modelClass model.ModelClass) model.Streamer {
	return &googleStreamer{iter: iter, nameMap: nameMap, modelID: modelID, modelClass: modelClass}
}

func (s *googleStreamer) Recv() (model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.pending) > 0 {
			chunk := s.pending[0]
			s.pending = s.pending[1:]
			return chunk, nil
		}
		if s.done {
			if s.finalErr != nil {
				return model.Chunk{}, s.finalErr
			}
			return model.Chunk{}, io.EOF
		}

		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			s.done = true
			return model.Chunk{Type: model.ChunkTypeStop}, nil
		}
		if err != nil {
			s.done = true
			if isRateLimited(err) {
				s.finalErr = fmt.Errorf("%w: %w", model.ErrRateLimited, err)
			} else {
				s.finalErr = fmt.Errorf("google stream recv: %w", err)
			}
			return model.Chunk{}, s.finalErr
		}

		chunks, err := s.translateChunk(resp)
		if err != nil {
			s.done = true
			s.finalErr = err
			return model.Chunk{}, err
		}
		if len(chunks) == 0 {
			continue
		}
		s.pending = chunks[1:]
		return chunks[0], nil
	}
}

func (s *googleStreamer) Close() error { return nil }

func (s *googleStreamer) Metadata() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

func (s *googleStreamer) translateChunk(resp *genai.GenerateContentResponse) ([]model.Chunk, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				if string(v) == "" {
					continue
				}
				chunks = append(chunks, model.Chunk{
					Type: model.ChunkTypeText,
					Message: &model.Message{
						Role:  model.ConversationRoleAssistant,
						Parts: []model.Part{model.TextPart{Text: string(v)}},
					},
				})
			case genai.FunctionCall:
				canonical, ok := s.nameMap[v.Name]
				if !ok {
					canonical = v.Name
				}
				payload, err := json.Marshal(v.Args)
				if err != nil {
					return nil, fmt.Errorf("google stream: marshaling function call args: %w", err)
				}
				chunks = append(chunks, model.Chunk{
					Type: model.ChunkTypeToolCall,
					ToolCall: &model.ToolCall{
						Name:    model.ToolIdent(canonical),
						Payload: payload,
					},
				})
			}
		}
	}
	if resp.UsageMetadata != nil {
		usage := model.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
			Model:        s.modelID,
			ModelClass:   s.modelClass,
		}
		if s.metadata == nil {
			s.metadata = make(map[string]any)
		}
		s.metadata["usage"] = usage
		chunks = append(chunks, model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &usage})
	}
	return chunks, nil
}
