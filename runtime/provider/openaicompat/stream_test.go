package openaicompat

import (
	"errors"
	"io"
	"testing"

	"github.com/anotherai/gateway/runtime/model"
)

type fakeStreamer struct {
	chunks []model.Chunk
	i      int
	err    error
}

func (f *fakeStreamer) Recv() (model.Chunk, error) {
	if f.i >= len(f.chunks) {
		if f.err != nil {
			return model.Chunk{}, f.err
		}
		return model.Chunk{}, io.EOF
	}
	c := f.chunks[f.i]
	f.i++
	return c, nil
}

func (f *fakeStreamer) Close() error             { return nil }
func (f *fakeStreamer) Metadata() map[string]any { return nil }

func textChunk(text string) model.Chunk {
	return model.Chunk{
		Type: model.ChunkTypeText,
		Message: &model.Message{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: text}},
		},
	}
}

func drain(t *testing.T, s model.Streamer) []model.Chunk {
	t.Helper()
	var out []model.Chunk
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		out = append(out, c)
	}
}

func TestThinkTagStreamer_StripsTagsWithinSingleChunk(t *testing.T) {
	fake := &fakeStreamer{chunks: []model.Chunk{
		textChunk("hello <think>secret reasoning</think> world"),
	}}
	out := drain(t, newThinkTagStreamer(fake))

	var text, thinking string
	for _, c := range out {
		switch c.Type {
		case model.ChunkTypeText:
			text += c.Message.Parts[0].(model.TextPart).Text
		case model.ChunkTypeThinking:
			thinking += c.Thinking
		}
	}
	if text != "hello  world" {
		t.Fatalf("unexpected stripped text %q", text)
	}
	if thinking != "secret reasoning" {
		t.Fatalf("unexpected thinking text %q", thinking)
	}
}

func TestThinkTagStreamer_HandlesTagSplitAcrossChunks(t *testing.T) {
	fake := &fakeStreamer{chunks: []model.Chunk{
		textChunk("before <thi"),
		textChunk("nk>hidden</th"),
		textChunk("ink> after"),
	}}
	out := drain(t, newThinkTagStreamer(fake))

	var text, thinking string
	for _, c := range out {
		switch c.Type {
		case model.ChunkTypeText:
			text += c.Message.Parts[0].(model.TextPart).Text
		case model.ChunkTypeThinking:
			thinking += c.Thinking
		}
	}
	if text != "before  after" {
		t.Fatalf("unexpected stripped text %q", text)
	}
	if thinking != "hidden" {
		t.Fatalf("unexpected thinking text %q", thinking)
	}
}

func TestThinkTagStreamer_PassesThroughNonTextChunks(t *testing.T) {
	fake := &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkTypeStop, StopReason: "stop"},
	}}
	out := drain(t, newThinkTagStreamer(fake))
	if len(out) != 1 || out[0].Type != model.ChunkTypeStop {
		t.Fatalf("expected stop chunk to pass through unchanged, got %+v", out)
	}
}

func TestThinkTagStreamer_FlushesCarryOnEOF(t *testing.T) {
	fake := &fakeStreamer{chunks: []model.Chunk{
		textChunk("trailing <thi"),
	}}
	s := newThinkTagStreamer(fake)

	c1, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if c1.Type != model.ChunkTypeText || c1.Message.Parts[0].(model.TextPart).Text != "trailing " {
		t.Fatalf("unexpected first chunk %+v", c1)
	}

	c2, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if c2.Type != model.ChunkTypeText || c2.Message.Parts[0].(model.TextPart).Text != "<thi" {
		t.Fatalf("expected held-back partial tag to flush as text on EOF, got %+v", c2)
	}

	_, err = s.Recv()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
