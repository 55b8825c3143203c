package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/provider"
	"github.com/anotherai/gateway/runtime/runner"
)

// chatMessageDTO is one message in an OpenAI Chat Completions request. Content
// is either a plain string or an array of typed content parts; both are
// accepted since real clients use both forms depending on whether the
// message carries attachments.
type chatMessageDTO struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type chatContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type chatCompletionsRequest struct {
	Model            string           `json:"model" binding:"required"`
	Messages         []chatMessageDTO `json:"messages" binding:"required"`
	Stream           bool             `json:"stream"`
	Temperature      *float32         `json:"temperature"`
	TopP             *float32         `json:"top_p"`
	MaxTokens        *int             `json:"max_tokens"`
	FrequencyPenalty *float32         `json:"frequency_penalty"`
	PresencePenalty  *float32         `json:"presence_penalty"`

	// PreserveCredits lets a shadow/test request bypass credit-balance
	// enforcement (spec §4.4); never set by ordinary clients.
	PreserveCredits bool   `json:"preserve_credits"`
	AgentID         string `json:"agent_id"`

	// Provider pins a single provider, bypassing the model's declared
	// priority order.
	Provider string `json:"provider"`

	// UseFallback is "never" to disable advancing to the next candidate
	// provider on a retryable failure, or "auto"/omitted to follow the
	// model's declared provider priority.
	UseFallback string `json:"use_fallback"`

	// UseCache is "never" to force a live completion, or "auto"/omitted to
	// allow a cache hit for an identical (version, input) pair.
	UseCache string `json:"use_cache"`

	Input    map[string]any `json:"input"`
	Metadata map[string]any `json:"metadata"`
}

// toMessages translates the OpenAI-wire messages into the runner's internal
// representation. Image content parts become bare TextParts carrying the
// image URL; the render package's file-reference resolver promotes those to
// ImageParts after template rendering, so this layer does not need its own
// file-fetching logic.
func (r chatCompletionsRequest) toMessages() ([]*model.Message, error) {
	out := make([]*model.Message, len(r.Messages))
	for i, m := range r.Messages {
		msg := &model.Message{Role: model.ConversationRole(m.Role)}

		var asString string
		if err := json.Unmarshal(m.Content, &asString); err == nil {
			msg.Parts = []model.Part{model.TextPart{Text: asString}}
			out[i] = msg
			continue
		}

		var parts []chatContentPart
		if err := json.Unmarshal(m.Content, &parts); err != nil {
			return nil, fmt.Errorf("message[%d]: content must be a string or an array of parts: %w", i, err)
		}
		msg.Parts = make([]model.Part, 0, len(parts))
		for _, p := range parts {
			switch p.Type {
			case "text":
				msg.Parts = append(msg.Parts, model.TextPart{Text: p.Text})
			case "image_url":
				msg.Parts = append(msg.Parts, model.TextPart{Text: p.ImageURL.URL})
			default:
				return nil, fmt.Errorf("message[%d]: unsupported content part type %q", i, p.Type)
			}
		}
		out[i] = msg
	}
	return out, nil
}

func (s *Server) toRunnerRequest(c *gin.Context, req chatCompletionsRequest) (*runner.Request, error) {
	messages, err := req.toMessages()
	if err != nil {
		return nil, err
	}
	return &runner.Request{
		AgentID:          req.AgentID,
		Model:            req.Model,
		Provider:         provider.Name(req.Provider),
		UseFallback:      parseUseFallback(req.UseFallback),
		UseCache:         req.UseCache != "never",
		Messages:         messages,
		Variables:        req.Input,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Source:           domain.SourceAPI,
		TenantUID:        principal(c).TenantUID,
		PreserveCredits:  req.PreserveCredits,
		Metadata:         req.Metadata,
	}, nil
}

func parseUseFallback(v string) domain.FallbackOption {
	if v == "never" {
		return domain.NeverFallback
	}
	return domain.AutoFallback
}

// chatCompletionChoice is one entry of an OpenAI-compatible completion
// response. Only the fields the gateway's own clients (the web app, the CLI)
// read are populated; index is always 0 since the gateway never returns
// multiple choices per completion.
type chatCompletionChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
	CostUSD      float64             `json:"cost_usd,omitempty"`
}

type chatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
}

func plainTextOf(messages []map[string]any) string {
	var text string
	for _, m := range messages {
		parts, _ := m["Parts"].([]any)
		for _, rawPart := range parts {
			part, ok := rawPart.(map[string]any)
			if !ok || part["Kind"] != "text" {
				continue
			}
			if t, ok := part["Text"].(string); ok {
				text += t
			}
		}
	}
	return text
}

func toChatCompletionResponse(completion *domain.AgentCompletion) chatCompletionResponse {
	finishReason := "stop"
	if completion.Status == domain.CompletionFailure {
		finishReason = "error"
	}
	return chatCompletionResponse{
		ID:      completion.ID.String(),
		Object:  "chat.completion",
		Created: completion.CreatedAt().Unix(),
		Model:   completion.Version.Model,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      chatResponseMessage{Role: "assistant", Content: plainTextOf(completion.Output.Messages)},
			FinishReason: finishReason,
			CostUSD:      completion.CostUSD,
		}},
	}
}

// handleChatCompletions answers POST /v1/chat/completions (and its
// documented path variants), dispatching to the completion runner buffered
// or streamed depending on the request's stream field.
func (s *Server) handleChatCompletions(c *gin.Context) {
	var req chatCompletionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid chat completion request")
		return
	}

	tenantUID := principal(c).TenantUID
	if err := s.creditGate.Check(c.Request.Context(), tenantUID, req.PreserveCredits); err != nil {
		s.writeError(c, err)
		return
	}

	runnerReq, err := s.toRunnerRequest(c, req)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if req.Stream {
		s.streamChatCompletion(c, runnerReq)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	completion, err := s.runner.Complete(ctx, runnerReq)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, toChatCompletionResponse(completion))
}

// streamChatCompletion answers a streamed chat completion as Server-Sent
// Events, using the request's own context rather than requestContext's
// bounded timeout since a long-running stream is expected, not an error.
func (s *Server) streamChatCompletion(c *gin.Context, req *runner.Request) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := bufio.NewWriter(c.Writer)
	flusher, _ := c.Writer.(http.Flusher)

	send := func(chunk runner.OutputChunk) error {
		var payload any
		if chunk.Completion != nil {
			payload = toChatCompletionResponse(chunk.Completion)
		} else if chunk.Delta != nil && chunk.Delta.Message != nil {
			payload = chatCompletionChoice{
				Index:        0,
				Message:      chatResponseMessage{Role: "assistant", Content: plainTextOf([]map[string]any{{"Parts": deltaPartsAsMaps(chunk.Delta.Message)}})},
				FinishReason: "",
			}
		} else {
			return nil
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(writer, "data: %s\n\n", raw); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := s.runner.Stream(c.Request.Context(), req, send); err != nil {
		s.logger.Error(c.Request.Context(), "chat completion stream failed", "error", err)
		return
	}
	fmt.Fprint(writer, "data: [DONE]\n\n")
	writer.Flush()
	if flusher != nil {
		flusher.Flush()
	}
}

// deltaPartsAsMaps extracts a streamed delta message's parts into the same
// discriminated-map shape plainTextOf expects, so a single text-extraction
// helper serves both the final and incremental response paths.
func deltaPartsAsMaps(msg *model.Message) []any {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil
	}
	parts, _ := asMap["Parts"].([]any)
	return parts
}
