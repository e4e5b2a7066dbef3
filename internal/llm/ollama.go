package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// ollamaGateway runs prompts against a local Ollama server through langchaingo.
type ollamaGateway struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

func newOllamaGateway(cfg Config, logger *zap.Logger) (*ollamaGateway, error) {
	client, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}

	return &ollamaGateway{
		llm:         client,
		temperature: *cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Generate implements Gateway. Ollama is local, so there are no retries.
func (o *ollamaGateway) Generate(ctx context.Context, system string, turns ...string) (string, error) {
	messages := make([]llms.MessageContent, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}
	for _, turn := range turns {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, turn))
	}

	o.logger.Debug("ollama generate", zap.Int("turns", len(turns)))
	resp, err := o.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(o.temperature),
		llms.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Content, nil
}

var _ Gateway = (*ollamaGateway)(nil)
