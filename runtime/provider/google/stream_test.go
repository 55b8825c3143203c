package google

import (
	"errors"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"github.com/anotherai/gateway/runtime/model"
)

type fakeContentIterator struct {
	responses []*genai.GenerateContentResponse
	err       error
	i         int
}

func (f *fakeContentIterator) Next() (*genai.GenerateContentResponse, error) {
	if f.i >= len(f.responses) {
		if f.err != nil {
			return nil, f.err
		}
		return nil, iterator.Done
	}
	r := f.responses[f.i]
	f.i++
	return r, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}},
		},
	}
}

func TestGoogleStreamer_EmitsTextChunksThenStop(t *testing.T) {
	fake := &fakeContentIterator{responses: []*genai.GenerateContentResponse{
		textResponse("hello"),
		textResponse(" world"),
	}}
	s := newGoogleStreamer(fake, nil, "gemini-2.5-flash", model.ModelClassDefault)

	chunk, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, model.ChunkTypeText, chunk.Type)
	require.Equal(t, "hello", chunk.Message.Parts[0].(model.TextPart).Text)

	chunk, err = s.Recv()
	require.NoError(t, err)
	require.Equal(t, " world", chunk.Message.Parts[0].(model.TextPart).Text)

	chunk, err = s.Recv()
	require.NoError(t, err)
	require.Equal(t, model.ChunkTypeStop, chunk.Type)

	_, err = s.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestGoogleStreamer_SkipsEmptyResponsesWithoutDeadlock(t *testing.T) {
	fake := &fakeContentIterator{responses: []*genai.GenerateContentResponse{
		{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
		textResponse("finally"),
	}}
	s := newGoogleStreamer(fake, nil, "gemini-2.5-flash", model.ModelClassDefault)

	chunk, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "finally", chunk.Message.Parts[0].(model.TextPart).Text)
}

func TestGoogleStreamer_UsageChunkCarriesModelAndClass(t *testing.T) {
	resp := textResponse("hi")
	resp.UsageMetadata = &genai.UsageMetadata{
		PromptTokenCount:     10,
		CandidatesTokenCount: 2,
		TotalTokenCount:      12,
	}
	fake := &fakeContentIterator{responses: []*genai.GenerateContentResponse{resp}}
	s := newGoogleStreamer(fake, nil, "gemini-2.5-pro", model.ModelClassSmall)

	_, err := s.Recv()
	require.NoError(t, err)

	chunk, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, model.ChunkTypeUsage, chunk.Type)
	require.Equal(t, "gemini-2.5-pro", chunk.UsageDelta.Model)
	require.Equal(t, model.ModelClassSmall, chunk.UsageDelta.ModelClass)
	require.Equal(t, 12, chunk.UsageDelta.TotalTokens)

	meta := s.Metadata()
	require.NotNil(t, meta["usage"])
}

func TestGoogleStreamer_WrapsRateLimitError(t *testing.T) {
	fake := &fakeContentIterator{err: errors.New("rpc error: code = ResourceExhausted")}
	s := newGoogleStreamer(fake, nil, "gemini-2.5-flash", model.ModelClassDefault)

	_, err := s.Recv()
	require.ErrorIs(t, err, model.ErrRateLimited)
}

func TestGoogleStreamer_ToolCallUsesCanonicalName(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{
				genai.FunctionCall{Name: "atlas_read_get_time_series", Args: map[string]any{"x": 1.0}},
			}}},
		},
	}
	fake := &fakeContentIterator{responses: []*genai.GenerateContentResponse{resp}}
	s := newGoogleStreamer(fake, map[string]string{"atlas_read_get_time_series": "atlas.read.get_time_series"}, "gemini-2.5-flash", model.ModelClassDefault)

	chunk, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, model.ChunkTypeToolCall, chunk.Type)
	require.Equal(t, model.ToolIdent("atlas.read.get_time_series"), chunk.ToolCall.Name)
}
