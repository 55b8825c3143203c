package render

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/anotherai/gateway/runtime/model"
)

// Render expands every {{ path.to.var }} reference in prompt's text parts
// against variables, returning a new slice of messages with ImagePart,
// DocumentPart, and other non-text parts copied through unchanged. Messages
// render concurrently; if any message fails to render, the first failure is
// returned and the others are discarded, per spec §5's "first exception
// surfaced" suspension-point note.
//
// Render is a no-op, returning prompt unchanged, when prompt or variables is
// empty.
func Render(ctx context.Context, variables map[string]any, prompt []*model.Message) ([]*model.Message, error) {
	if len(prompt) == 0 || len(variables) == 0 {
		return prompt, nil
	}

	rendered := make([]*model.Message, len(prompt))
	g, _ := errgroup.WithContext(ctx)
	for i, msg := range prompt {
		i, msg := i, msg
		g.Go(func() error {
			out, err := renderMessage(msg, variables)
			if err != nil {
				return err
			}
			rendered[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rendered, nil
}

// renderMessage renders every TextPart in msg exactly once, leaving other
// part kinds untouched.
func renderMessage(msg *model.Message, variables map[string]any) (*model.Message, error) {
	parts := make([]model.Part, len(msg.Parts))
	for i, p := range msg.Parts {
		tp, ok := p.(model.TextPart)
		if !ok {
			parts[i] = p
			continue
		}
		text, err := renderText(tp.Text, variables)
		if err != nil {
			return nil, err
		}
		parts[i] = model.TextPart{Text: text}
	}
	return &model.Message{Role: msg.Role, Parts: parts, Meta: msg.Meta}, nil
}
