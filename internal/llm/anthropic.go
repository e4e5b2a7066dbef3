package llm

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const anthropicVersion = "2023-06-01"

// anthropicGateway implements Gateway using the Anthropic Messages API.
// The system prompt travels in its own field rather than as a message.
type anthropicGateway struct {
	client      *apiClient
	model       string
	temperature float64
	maxTokens   int
}

func newAnthropicGateway(cfg Config, logger *zap.Logger) *anthropicGateway {
	h := http.Header{}
	h.Set("X-API-Key", cfg.APIKey)
	h.Set("Anthropic-Version", anthropicVersion)
	return &anthropicGateway{
		client:      newAPIClient(cfg, h, logger),
		model:       cfg.Model,
		temperature: *cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type messagesReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Generate implements Gateway. Text blocks of the reply are concatenated.
func (a *anthropicGateway) Generate(ctx context.Context, system string, turns ...string) (string, error) {
	req := messagesRequest{
		Model:       a.model,
		System:      system,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Messages:    make([]chatMessage, 0, len(turns)),
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, chatMessage{Role: "user", Content: turn})
	}

	var reply messagesReply
	if err := a.client.post(ctx, "/v1/messages", req, &reply); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range reply.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

var _ Gateway = (*anthropicGateway)(nil)
