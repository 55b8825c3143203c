package openaicompat

import (
	"strings"

	"github.com/anotherai/gateway/runtime/model"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// thinkTagStreamer wraps a model.Streamer and splits Fireworks' inline
// <think>...</think> reasoning blocks out of the text stream: text inside
// the tags is re-emitted as ChunkTypeThinking chunks instead of surfacing as
// ordinary assistant text. Tags may be split across chunk boundaries, so a
// partial match at the end of a chunk is held back (carry) until enough of
// the next chunk arrives to resolve it.
type thinkTagStreamer struct {
	inner model.Streamer

	pending     []model.Chunk
	insideThink bool
	carry       string
	pendingErr  error
}

func newThinkTagStreamer(inner model.Streamer) model.Streamer {
	return &thinkTagStreamer{inner: inner}
}

func (s *thinkTagStreamer) Recv() (model.Chunk, error) {
	for {
		if len(s.pending) > 0 {
			c := s.pending[0]
			s.pending = s.pending[1:]
			return c, nil
		}

		chunk, err := s.inner.Recv()
		if err != nil {
			if s.carry != "" {
				leftover := s.emit(s.carry)
				s.carry = ""
				s.pendingErr = err
				return leftover, nil
			}
			if s.pendingErr != nil {
				pending := s.pendingErr
				s.pendingErr = nil
				return model.Chunk{}, pending
			}
			return model.Chunk{}, err
		}

		if chunk.Type != model.ChunkTypeText || chunk.Message == nil {
			return chunk, nil
		}
		text := textOf(chunk.Message)
		if text == "" {
			return chunk, nil
		}
		out := s.split(text)
		if len(out) == 0 {
			continue
		}
		s.pending = out[1:]
		return out[0], nil
	}
}

func (s *thinkTagStreamer) Close() error { return s.inner.Close() }

func (s *thinkTagStreamer) Metadata() map[string]any { return s.inner.Metadata() }

// split scans data (carry-over plus newly arrived text) for the tag matching
// the current state, emitting everything before the tag under the current
// state and toggling state on each match.
func (s *thinkTagStreamer) split(text string) []model.Chunk {
	data := s.carry + text
	s.carry = ""
	var out []model.Chunk
	for {
		tag := thinkOpenTag
		if s.insideThink {
			tag = thinkCloseTag
		}
		idx := strings.Index(data, tag)
		if idx < 0 {
			hold := partialTagSuffixLen(data, tag)
			emit := data[:len(data)-hold]
			s.carry = data[len(data)-hold:]
			if emit != "" {
				out = append(out, s.emit(emit))
			}
			return out
		}
		if before := data[:idx]; before != "" {
			out = append(out, s.emit(before))
		}
		s.insideThink = !s.insideThink
		data = data[idx+len(tag):]
	}
}

func (s *thinkTagStreamer) emit(text string) model.Chunk {
	if s.insideThink {
		return model.Chunk{Type: model.ChunkTypeThinking, Thinking: text}
	}
	return model.Chunk{
		Type: model.ChunkTypeText,
		Message: &model.Message{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: text}},
		},
	}
}

func textOf(msg *model.Message) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(model.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// partialTagSuffixLen returns the length of the longest suffix of data that
// is also a prefix of tag, i.e. how many trailing bytes of data might be the
// start of an as-yet-incomplete tag and must be held back rather than
// emitted.
func partialTagSuffixLen(data, tag string) int {
	max := len(tag) - 1
	if max > len(data) {
		max = len(data)
	}
	for l := max; l > 0; l-- {
		if strings.HasSuffix(data, tag[:l]) {
			return l
		}
	}
	return 0
}
