package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Supported providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
)

// Default configuration values.
const (
	defaultOllamaBaseURL    = "http://localhost:11434"
	defaultOllamaModel      = "llama3.2:latest"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o"
	defaultGroqBaseURL      = "https://api.groq.com/openai"
	defaultGroqModel        = "llama-3.3-70b-versatile"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultTemperature      = 0.3
	defaultMaxTokens        = 4096
	defaultTimeout          = 120 * time.Second
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRequestsPerMinute = 50.0
	defaultBurst             = 5
)

var (
	// ErrUnknownProvider is returned for a provider name the factory does not know.
	ErrUnknownProvider = errors.New("unknown llm provider")

	// ErrMissingAPIKey is returned when a hosted provider has no API key.
	ErrMissingAPIKey = errors.New("api key required")

	// ErrEmptyResponse is returned when the model answered with no content.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrModelNotAllowed is returned for a model override outside the
	// configured allowlist.
	ErrModelNotAllowed = errors.New("model not allowed")
)

// Gateway sends a prompt to a language model and returns the generated text.
type Gateway interface {
	// Generate sends system as the system prompt followed by each user turn.
	Generate(ctx context.Context, system string, turns ...string) (string, error)
}

// GatewayFunc adapts an ordinary function to the Gateway interface.
type GatewayFunc func(ctx context.Context, system string, turns ...string) (string, error)

// Generate calls f.
func (f GatewayFunc) Generate(ctx context.Context, system string, turns ...string) (string, error) {
	return f(ctx, system, turns...)
}

// Config selects and configures a provider. It is passed explicitly to
// NewGateway; nothing in this package reads the environment.
type Config struct {
	Provider string
	Model    string
	// AllowedModels lists the models a caller may select instead of Model.
	// Empty means any model.
	AllowedModels     []string
	APIKey            string
	BaseURL           string
	Temperature       *float64 // nil selects the default; 0 is valid
	MaxTokens         int
	Timeout           time.Duration // HTTP client timeout
	RequestsPerMinute float64
	MaxRetries        int
	// Limiter paces hosted API calls. Gateways built from configs that
	// share a Limiter share one request budget. Nil builds a limiter per
	// gateway from RequestsPerMinute.
	Limiter *rate.Limiter
}

// Temperature returns a pointer to t for use in Config.
func Temperature(t float64) *float64 { return &t }

// NewLimiter returns a limiter allowing requestsPerMinute calls with a
// small burst. A non-positive rate selects the default.
func NewLimiter(requestsPerMinute float64) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	return rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), defaultBurst)
}

// Allows reports whether model may be selected. The configured model is
// always allowed.
func (c Config) Allows(model string) bool {
	if model == c.Model || len(c.AllowedModels) == 0 {
		return true
	}
	for _, m := range c.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// WithDefaults returns a copy of c with provider defaults filled in.
func (c Config) WithDefaults() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	if c.Model == "" {
		c.Model = DefaultModel(c.Provider)
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL(c.Provider)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Temperature == nil {
		c.Temperature = Temperature(defaultTemperature)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// RequiresAPIKey reports whether the provider is hosted and needs a key.
func RequiresAPIKey(provider string) bool {
	switch strings.ToLower(provider) {
	case ProviderOpenAI, ProviderGroq, ProviderAnthropic:
		return true
	}
	return false
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return defaultOpenAIModel
	case ProviderGroq:
		return defaultGroqModel
	case ProviderAnthropic:
		return defaultAnthropicModel
	default:
		return defaultOllamaModel
	}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return defaultOpenAIBaseURL
	case ProviderGroq:
		return defaultGroqBaseURL
	case ProviderAnthropic:
		return defaultAnthropicBaseURL
	default:
		return defaultOllamaBaseURL
	}
}

// NewGateway creates the gateway for cfg.Provider.
func NewGateway(cfg Config, logger *zap.Logger) (Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults()

	if RequiresAPIKey(cfg.Provider) && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
	}

	logger = logger.With(zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))

	switch cfg.Provider {
	case ProviderOllama:
		return newOllamaGateway(cfg, logger)
	case ProviderOpenAI, ProviderGroq:
		return newOpenAIGateway(cfg, logger), nil
	case ProviderAnthropic:
		return newAnthropicGateway(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// boundedGateway applies a deadline to every call.
type boundedGateway struct {
	next    Gateway
	timeout time.Duration
}

// Bounded wraps g so each Generate call runs under its own timeout. A call
// that exceeds the budget fails with context.DeadlineExceeded like any other
// generation error. A non-positive timeout returns g unchanged.
func Bounded(g Gateway, timeout time.Duration) Gateway {
	if timeout <= 0 {
		return g
	}
	return &boundedGateway{next: g, timeout: timeout}
}

func (b *boundedGateway) Generate(ctx context.Context, system string, turns ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Generate(ctx, system, turns...)
}

var _ Gateway = (*boundedGateway)(nil)
