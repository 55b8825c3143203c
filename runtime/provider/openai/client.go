// Package openai provides a provider.Adapter backed by the OpenAI Chat
// Completions API. It translates gateway requests into
// openai.ChatCompletionNewParams calls using github.com/openai/openai-go and
// maps responses and streamed chunks back into the generic model types.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/anotherai/gateway/runtime/model"
)

// ChatClient captures the subset of the openai-go client used by the
// adapter, so tests can substitute a fake without a real HTTP round trip.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Options configures the OpenAI adapter.
type Options struct {
	Chat         ChatClient
	DefaultModel string
}

// Client implements provider.Adapter via the OpenAI Chat Completions API.
type Client struct {
	chat  ChatClient
	model string
}

// New builds an OpenAI-backed adapter from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: opts.Chat, model: modelID}, nil
}

// NewFromAPIKey constructs an adapter using the default openai-go HTTP
// client, optionally pointed at a compatible base URL (used by the
// openaicompat providers and Azure OpenAI).
func NewFromAPIKey(apiKey, baseURL, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	sdk := openai.NewClient(reqOpts...)
	return New(Options{Chat: sdk.Chat.Completions, DefaultModel: defaultModel})
}

// DefaultModel returns the model id used when a request does not pin one.
func (c *Client) DefaultModel() string { return c.model }

// RequiredEnv lists the environment variables this adapter needs.
func (c *Client) RequiredEnv() []string { return []string{"OPENAI_API_KEY"} }

// Complete renders a buffered chat completion using the configured client.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	params, err := c.translateRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp, c.resolveModelID(req), req.ModelClass), nil
}

func (c *Client) resolveModelID(req *model.Request) string {
	if strings.TrimSpace(req.Model) != "" {
		return req.Model
	}
	return c.model
}

// Stream renders a streaming chat completion, returning a model.Streamer
// that yields incremental text and tool-call deltas as they arrive.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	params, err := c.translateRequest(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := c.chat.NewStreaming(ctx, params)
	return newStreamer(stream, c.resolveModelID(req), req.ModelClass), nil
}

func (c *Client) translateRequest(req *model.Request) (openai.ChatCompletionNewParams, error) {
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.model
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: messages,
		Tools:    tools,
	}
	if req.Temperature != 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens != 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ToolChoice != nil {
		params.ToolChoice = encodeToolChoice(*req.ToolChoice)
	}
	return params, nil
}

func encodeMessages(msgs []*model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		text := flattenText(msg)
		switch msg.Role {
		case model.ConversationRoleSystem:
			out = append(out, openai.SystemMessage(text))
		case model.ConversationRoleUser:
			toolResult, hasToolResult := firstToolResult(msg)
			if hasToolResult {
				content, err := stringifyToolResult(toolResult.Content)
				if err != nil {
					return nil, err
				}
				out = append(out, openai.ToolMessage(content, toolResult.ToolUseID))
				continue
			}
			out = append(out, openai.UserMessage(text))
		case model.ConversationRoleAssistant:
			asst := openai.AssistantMessage(text)
			toolCalls := encodeAssistantToolCalls(msg)
			if len(toolCalls) > 0 {
				asst.OfAssistant.ToolCalls = toolCalls
			}
			out = append(out, asst)
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out, nil
}

func flattenText(msg *model.Message) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(model.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

func firstToolResult(msg *model.Message) (model.ToolResultPart, bool) {
	for _, part := range msg.Parts {
		if tr, ok := part.(model.ToolResultPart); ok {
			return tr, true
		}
	}
	return model.ToolResultPart{}, false
}

func stringifyToolResult(content any) (string, error) {
	if s, ok := content.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("openai: encode tool result: %w", err)
	}
	return string(raw), nil
}

func encodeAssistantToolCalls(msg *model.Message) []openai.ChatCompletionMessageToolCallUnionParam {
	var calls []openai.ChatCompletionMessageToolCallUnionParam
	for _, part := range msg.Parts {
		use, ok := part.(model.ToolUsePart)
		if !ok {
			continue
		}
		args, err := json.Marshal(use.Input)
		if err != nil {
			continue
		}
		calls = append(calls, openai.ChatCompletionMessageFunctionToolCallParam{
			ID: use.ID,
			Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
				Name:      use.Name,
				Arguments: string(args),
			},
		}.AsAny())
	}
	return calls
}

func encodeTools(defs []*model.ToolDefinition) ([]openai.ChatCompletionToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		params, ok := def.InputSchema.(map[string]any)
		if !ok {
			raw, err := json.Marshal(def.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("openai: marshal tool %s schema: %w", def.Name, err)
			}
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("openai: tool %s schema must be a JSON object: %w", def.Name, err)
			}
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  openai.FunctionParameters(params),
		}))
	}
	return tools, nil
}

func encodeToolChoice(choice model.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice.Mode {
	case model.ToolChoiceModeNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	case model.ToolChoiceModeAny:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	case model.ToolChoiceModeTool:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
}

func translateResponse(resp *openai.ChatCompletion, modelID string, modelClass model.ModelClass) *model.Response {
	messages := make([]model.Message, 0, len(resp.Choices))
	toolCalls := make([]model.ToolCall, 0)
	for _, choice := range resp.Choices {
		msg := choice.Message
		var parts []model.Part
		if strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, model.TextPart{Text: msg.Content})
		}
		if len(parts) > 0 {
			messages = append(messages, model.Message{Role: model.ConversationRoleAssistant, Parts: parts})
		}
		for _, call := range msg.ToolCalls {
			toolCalls = append(toolCalls, model.ToolCall{
				Name:    model.ToolIdent(call.Function.Name),
				Payload: json.RawMessage(call.Function.Arguments),
				ID:      call.ID,
			})
		}
	}
	usage := model.TokenUsage{
		InputTokens:     int(resp.Usage.PromptTokens),
		OutputTokens:    int(resp.Usage.CompletionTokens),
		TotalTokens:     int(resp.Usage.TotalTokens),
		CacheReadTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
		Model:           modelID,
		ModelClass:      modelClass,
	}
	stop := ""
	if len(resp.Choices) > 0 {
		stop = string(resp.Choices[0].FinishReason)
	}
	return &model.Response{
		Content:    messages,
		ToolCalls:  toolCalls,
		Usage:      usage,
		StopReason: stop,
	}
}
