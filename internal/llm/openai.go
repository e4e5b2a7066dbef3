package llm

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// openAIGateway talks to any OpenAI-compatible chat completions endpoint.
// Groq is served by the same client with a different base URL.
type openAIGateway struct {
	client      *apiClient
	model       string
	temperature float64
	maxTokens   int
}

func newOpenAIGateway(cfg Config, logger *zap.Logger) *openAIGateway {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+cfg.APIKey)
	return &openAIGateway{
		client:      newAPIClient(cfg, h, logger),
		model:       cfg.Model,
		temperature: *cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type openAIReply struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate implements Gateway.
func (o *openAIGateway) Generate(ctx context.Context, system string, turns ...string) (string, error) {
	req := openAIRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		Messages:    make([]chatMessage, 0, len(turns)+1),
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, chatMessage{Role: "user", Content: turn})
	}

	var reply openAIReply
	if err := o.client.post(ctx, "/v1/chat/completions", req, &reply); err != nil {
		return "", err
	}
	if len(reply.Choices) == 0 || reply.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return reply.Choices[0].Message.Content, nil
}

var _ Gateway = (*openAIGateway)(nil)
