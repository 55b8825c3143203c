package openai

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/anotherai/gateway/runtime/model"
)

// testDecoder feeds a fixed sequence of raw SSE events into an
// ssestream.Stream[openai.ChatCompletionChunk], mirroring the pattern the
// Anthropic streamer tests use for its own decoder seam.
type testDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return nil }

func chunkEvent(t *testing.T, chunk openai.ChatCompletionChunk) ssestream.Event {
	t.Helper()
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return ssestream.Event{Type: "", Data: data}
}

func TestStreamer_EmitsTextThenStopThenUsage(t *testing.T) {
	events := []ssestream.Event{
		chunkEvent(t, openai.ChatCompletionChunk{
			Choices: []openai.ChatCompletionChunkChoice{
				{Delta: openai.ChatCompletionChunkChoiceDelta{Content: "hel"}},
			},
		}),
		chunkEvent(t, openai.ChatCompletionChunk{
			Choices: []openai.ChatCompletionChunkChoice{
				{Delta: openai.ChatCompletionChunkChoiceDelta{Content: "lo"}},
			},
		}),
		chunkEvent(t, openai.ChatCompletionChunk{
			Choices: []openai.ChatCompletionChunkChoice{{FinishReason: "stop"}},
		}),
		chunkEvent(t, openai.ChatCompletionChunk{
			Usage: openai.CompletionUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		}),
	}
	dec := &testDecoder{events: events}
	sse := ssestream.NewStream[openai.ChatCompletionChunk](dec, nil)
	s := newStreamer(sse, "gpt-4.1", model.ModelClassDefault)

	var texts []string
	var sawStop, sawUsage bool
	var usage *model.TokenUsage
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		switch chunk.Type {
		case model.ChunkTypeText:
			texts = append(texts, chunk.Message.Parts[0].(model.TextPart).Text)
		case model.ChunkTypeStop:
			sawStop = true
		case model.ChunkTypeUsage:
			sawUsage = true
			usage = chunk.UsageDelta
		}
	}
	if len(texts) != 2 || texts[0] != "hel" || texts[1] != "lo" {
		t.Fatalf("unexpected text chunks: %v", texts)
	}
	if !sawStop {
		t.Fatal("expected a stop chunk")
	}
	if !sawUsage || usage == nil {
		t.Fatal("expected a usage chunk")
	}
	if usage.Model != "gpt-4.1" || usage.ModelClass != model.ModelClassDefault {
		t.Fatalf("expected usage to carry model/modelClass, got %+v", usage)
	}
	if usage.TotalTokens != 5 {
		t.Fatalf("unexpected total tokens %d", usage.TotalTokens)
	}
}

func TestStreamer_AccumulatesToolCallArgumentFragments(t *testing.T) {
	events := []ssestream.Event{
		chunkEvent(t, openai.ChatCompletionChunk{
			Choices: []openai.ChatCompletionChunkChoice{{
				Delta: openai.ChatCompletionChunkChoiceDelta{
					ToolCalls: []openai.ChatCompletionChunkChoiceDeltaToolCall{
						{Index: 0, ID: "call-1", Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Name: "get_time", Arguments: `{"tz":`}},
					},
				},
			}},
		}),
		chunkEvent(t, openai.ChatCompletionChunk{
			Choices: []openai.ChatCompletionChunkChoice{{
				Delta: openai.ChatCompletionChunkChoiceDelta{
					ToolCalls: []openai.ChatCompletionChunkChoiceDeltaToolCall{
						{Index: 0, Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Arguments: `"UTC"}`}},
					},
				},
			}},
		}),
	}
	dec := &testDecoder{events: events}
	sse := ssestream.NewStream[openai.ChatCompletionChunk](dec, nil)
	s := newStreamer(sse, "gpt-4.1", model.ModelClassDefault)

	first, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if first.Type != model.ChunkTypeToolCallDelta {
		t.Fatalf("expected tool call delta, got %q", first.Type)
	}
	if string(first.ToolCallDelta.Name) != "get_time" {
		t.Fatalf("unexpected tool name %q", first.ToolCallDelta.Name)
	}

	second, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if second.ToolCallDelta.Delta != `"UTC"}` {
		t.Fatalf("unexpected delta fragment %q", second.ToolCallDelta.Delta)
	}
}
