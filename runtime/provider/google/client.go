// Package google provides a provider.Adapter backed by the Google Gemini API
// via github.com/google/generative-ai-go/genai. It maps the generic chat
// transcript onto a Gemini chat session (system instruction, multi-turn
// history, function calling) and translates responses/stream chunks back
// into the gateway's model types.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/anotherai/gateway/runtime/model"
)

// GenerativeClient captures the subset of *genai.Client used by the adapter.
type GenerativeClient interface {
	GenerativeModel(name string) *genai.GenerativeModel
}

// Options configures the Google adapter.
type Options struct {
	Client       GenerativeClient
	DefaultModel string
}

// Client implements provider.Adapter via the Gemini GenerateContent API.
type Client struct {
	genaiClient GenerativeClient
	model       string
}

// New builds a Gemini-backed adapter from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("google: generative client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("google: default model is required")
	}
	return &Client{genaiClient: opts.Client, model: modelID}, nil
}

// NewFromAPIKey constructs an adapter using the default genai HTTP client.
func NewFromAPIKey(ctx context.Context, apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("google: api key is required")
	}
	sdk, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: creating genai client: %w", err)
	}
	return New(Options{Client: sdk, DefaultModel: defaultModel})
}

// DefaultModel returns the model id used when a request does not pin one.
func (c *Client) DefaultModel() string { return c.model }

// RequiredEnv lists the environment variables this adapter needs.
func (c *Client) RequiredEnv() []string { return []string{"GOOGLE_API_KEY"} }

// Complete issues a buffered chat request against the configured Gemini model.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("google: messages are required")
	}
	gm, history, turn, canonToSan, sanToCanon, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	cs := gm.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, turn...)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("google generate content: %w", err)
	}
	return translateResponse(resp, sanToCanon, c.resolveModelID(req), req.ModelClass)
}

// Stream issues a streaming chat request and adapts the genai iterator into
// model.Chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("google: messages are required")
	}
	gm, history, turn, _, sanToCanon, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	cs := gm.StartChat()
	cs.History = history
	iter := cs.SendMessageStream(ctx, turn...)
	return newGoogleStreamer(iter, sanToCanon, c.resolveModelID(req), req.ModelClass), nil
}

func (c *Client) resolveModelID(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

// prepareRequest configures a GenerativeModel for req, splits the transcript
// into prior history and the final outgoing turn, and encodes tool
// definitions. Gemini has no notion of a per-request model override beyond
// selecting which named model to instantiate, so configuration (system
// instruction, temperature, tools) is attached to the model object itself
// rather than threaded through every call.
func (c *Client) prepareRequest(
	req *model.Request,
) (*genai.GenerativeModel, []*genai.Content, []genai.Part, map[string]string, map[string]string, error) {
	gm := c.genaiClient.GenerativeModel(c.resolveModelID(req))

	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		if temp > 1.0 {
			temp = 1.0
		}
		gm.SetTemperature(temp)
	}

	canonToSan, sanToCanon, err := c.configureTools(gm, req.Tools, req.ToolChoice)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	history, turn, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if len(turn) == 0 {
		return nil, nil, nil, nil, nil, errors.New("google: request must end with a user turn")
	}

	for _, m := range req.Messages {
		if m.Role != model.ConversationRoleSystem {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok && tp.Text != "" {
				gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(tp.Text)}}
			}
		}
	}

	return gm, history, turn, canonToSan, sanToCanon, nil
}

func (c *Client) configureTools(
	gm *genai.GenerativeModel,
	defs []*model.ToolDefinition,
	choice *model.ToolChoice,
) (map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		if choice != nil && choice.Mode != model.ToolChoiceModeAuto {
			return nil, nil, errors.New("google: tool choice requires at least one tool definition")
		}
		return nil, nil, nil
	}
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		sanitized := SanitizeToolName(def.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, fmt.Errorf(
				"google: tool name %q sanitizes to %q which collides with %q",
				def.Name, sanitized, prev,
			)
		}
		sanToCanon[sanitized] = def.Name
		canonToSan[def.Name] = sanitized
		schema, err := toGenaiSchema(def.InputSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("google: tool %q schema: %w", def.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        sanitized,
			Description: def.Description,
			Parameters:  schema,
		})
	}
	gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}

	if choice != nil {
		cfg := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{}}
		switch choice.Mode {
		case model.ToolChoiceModeNone:
			cfg.FunctionCallingConfig.Mode = genai.FunctionCallingNone
		case model.ToolChoiceModeAny:
			cfg.FunctionCallingConfig.Mode = genai.FunctionCallingAny
		case model.ToolChoiceModeTool:
			sanitized, ok := canonToSan[choice.Name]
			if !ok {
				return nil, nil, fmt.Errorf("google: tool choice references unknown tool %q", choice.Name)
			}
			cfg.FunctionCallingConfig.Mode = genai.FunctionCallingAny
			cfg.FunctionCallingConfig.AllowedFunctionNames = []string{sanitized}
		default:
			cfg.FunctionCallingConfig.Mode = genai.FunctionCallingAuto
		}
		gm.ToolConfig = cfg
	}

	return canonToSan, sanToCanon, nil
}

// toGenaiSchema converts a generic JSON Schema value into a *genai.Schema.
// Gemini's function-calling schema is a strict subset of JSON Schema, so
// unsupported keywords are dropped rather than rejected.
func toGenaiSchema(schema any) (*genai.Schema, error) {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}, nil
	}
	raw, err := toJSONMap(schema)
	if err != nil {
		return nil, err
	}
	return jsonMapToSchema(raw)
}

func toJSONMap(schema any) (map[string]any, error) {
	switch v := schema.(type) {
	case map[string]any:
		return v, nil
	case json.RawMessage:
		var m map[string]any
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

func jsonMapToSchema(m map[string]any) (*genai.Schema, error) {
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		switch t {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		default:
			s.Type = genai.TypeUnspecified
		}
	} else {
		s.Type = genai.TypeObject
	}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			sub, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			child, err := jsonMapToSchema(sub)
			if err != nil {
				return nil, err
			}
			s.Properties[name] = child
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		child, err := jsonMapToSchema(items)
		if err != nil {
			return nil, err
		}
		s.Items = child
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	return s, nil
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "resourceexhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "429")
}

// encodeMessages splits the transcript into prior chat history and the final
// outgoing turn. Gemini chat sessions replay History verbatim and then send
// the new turn's Parts, so the last message (expected to be from the user or
// a tool result) becomes turn and everything before it becomes history.
func encodeMessages(msgs []*model.Message, nameMap map[string]string) ([]*genai.Content, []genai.Part, error) {
	var history []*genai.Content
	var turn []genai.Part

	last := -1
	for i, m := range msgs {
		if m != nil && m.Role != model.ConversationRoleSystem {
			last = i
		}
	}
	if last < 0 {
		return nil, nil, nil
	}

	for i, m := range msgs {
		if m == nil || m.Role == model.ConversationRoleSystem {
			continue
		}
		parts, err := encodeParts(m.Parts, nameMap)
		if err != nil {
			return nil, nil, err
		}
		if len(parts) == 0 {
			continue
		}
		if i == last {
			turn = parts
			continue
		}
		history = append(history, &genai.Content{
			Role:  geminiRole(m.Role),
			Parts: parts,
		})
	}
	return history, turn, nil
}

// geminiRole maps a generic conversation role onto Gemini's two-role chat
// history model: "user" for user turns (including tool results, which
// Gemini represents as function-response parts inside a user-authored
// content block), and "model" for assistant turns.
func geminiRole(role model.ConversationRole) string {
	if role == model.ConversationRoleAssistant {
		return "model"
	}
	return "user"
}

func encodeParts(parts []model.Part, nameMap map[string]string) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case model.TextPart:
			if v.Text != "" {
				out = append(out, genai.Text(v.Text))
			}
		case model.ToolUsePart:
			sanitized, ok := nameMap[v.Name]
			if !ok {
				return nil, fmt.Errorf("google: tool_use references %q which is not in the current tool configuration", v.Name)
			}
			args, err := toJSONMap(v.Input)
			if err != nil {
				return nil, fmt.Errorf("google: encoding tool_use %q input: %w", v.Name, err)
			}
			out = append(out, genai.FunctionCall{Name: sanitized, Args: args})
		case model.ToolResultPart:
			response, err := toJSONMap(v.Content)
			if err != nil {
				// Gemini function responses must be an object; wrap scalar/text
				// results under a single field rather than failing the call.
				response = map[string]any{"result": fmt.Sprintf("%v", v.Content)}
			}
			out = append(out, genai.FunctionResponse{Name: v.ToolUseID, Response: response})
		case model.CacheCheckpointPart:
			// Gemini has no explicit cache-checkpoint primitive; context caching
			// is configured out-of-band via CachedContent, not per-message.
		case model.ThinkingPart, model.DocumentPart, model.CitationsPart:
			// Not yet supported by this adapter; silently dropped rather than
			// failing the whole request, matching the teacher's text-only
			// convertMessagesToParts behavior.
		}
	}
	return out, nil
}

func translateResponse(
	resp *genai.GenerateContentResponse,
	nameMap map[string]string,
	modelID string,
	modelClass model.ModelClass,
) (*model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("google: response has no candidates")
	}
	out := &model.Response{}
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				if string(v) == "" {
					continue
				}
				out.Content = append(out.Content, model.Message{
					Role:  model.ConversationRoleAssistant,
					Parts: []model.Part{model.TextPart{Text: string(v)}},
				})
			case genai.FunctionCall:
				canonical, ok := nameMap[v.Name]
				if !ok {
					canonical = v.Name
				}
				payload, err := json.Marshal(v.Args)
				if err != nil {
					return nil, fmt.Errorf("google: marshaling function call args: %w", err)
				}
				out.ToolCalls = append(out.ToolCalls, model.ToolCall{
					Name:    model.ToolIdent(canonical),
					Payload: payload,
				})
			}
		}
	}
	if candidate.FinishReason != genai.FinishReasonUnspecified {
		out.StopReason = candidate.FinishReason.String()
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
			Model:        modelID,
			ModelClass:   modelClass,
		}
	}
	return out, nil
}
