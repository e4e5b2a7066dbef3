// Package config provides configuration loading for storyforge.
//
// Configuration is read from an optional YAML file and overridden by
// environment variables. Defaults target a local Ollama model.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the complete storyforge configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	LLM           LLMConfig           `koanf:"llm"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	NATS          NATSConfig          `koanf:"nats"`
	Watch         WatchConfig         `koanf:"watch"`
	Redaction     RedactionConfig     `koanf:"redaction"`
	MCP           MCPConfig           `koanf:"mcp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
	UploadDir       string        `koanf:"upload_dir"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider          string        `koanf:"provider"` // ollama, openai, groq, anthropic
	Model             string        `koanf:"model"`
	AllowedModels     []string      `koanf:"allowed_models"` // per-request overrides; empty allows any
	BaseURL           string        `koanf:"base_url"`
	APIKey            Secret        `koanf:"api_key"`
	Temperature       float64       `koanf:"temperature"`
	MaxTokens         int           `koanf:"max_tokens"`
	CallTimeout       time.Duration `koanf:"call_timeout"`
	RequestsPerMinute float64       `koanf:"requests_per_minute"`
	MaxRetries        int           `koanf:"max_retries"`
}

// PipelineConfig tunes the generation pipeline.
type PipelineConfig struct {
	Threshold         int     `koanf:"threshold"`
	ParallelSamples   int     `koanf:"parallel_samples"`
	DedupeThreshold   float64 `koanf:"dedupe_threshold"`
	Reducer           string  `koanf:"reducer"` // fold, self_consistency
	OutputDir         string  `koanf:"output_dir"`
	IntegrationDir    string  `koanf:"integration_dir"`
	RedactSecrets     bool    `koanf:"redact_secrets"`
	SummarizeDocument bool    `koanf:"summarize_document"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"` // grpc, http
	Insecure        bool    `koanf:"insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// LoggingConfig holds the log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, console
}

// NATSConfig enables integration events.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Dir    string        `koanf:"dir"`
	Settle time.Duration `koanf:"settle"`
}

// RedactionConfig points at an optional allowlist for secret redaction.
type RedactionConfig struct {
	AllowlistPath string `koanf:"allowlist_path"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	// DocumentRoot confines document_path arguments. Empty allows any path
	// without ".." segments.
	DocumentRoot string `koanf:"document_root"`
}

// Providers and reducers accepted by Validate.
var (
	validProviders = []string{"ollama", "openai", "groq", "anthropic"}
	validReducers  = []string{"fold", "self_consistency"}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("max upload size must be positive")
	}
	if !contains(validProviders, c.LLM.Provider) {
		return fmt.Errorf("unknown llm provider %q (must be one of %s)", c.LLM.Provider, strings.Join(validProviders, ", "))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.Pipeline.Threshold < 1 {
		return fmt.Errorf("pipeline threshold must be at least 1, got %d", c.Pipeline.Threshold)
	}
	if c.Pipeline.ParallelSamples < 1 {
		return fmt.Errorf("pipeline parallel_samples must be at least 1, got %d", c.Pipeline.ParallelSamples)
	}
	if c.Pipeline.DedupeThreshold <= 0 || c.Pipeline.DedupeThreshold > 1 {
		return fmt.Errorf("pipeline dedupe_threshold must be in (0, 1], got %g", c.Pipeline.DedupeThreshold)
	}
	if !contains(validReducers, c.Pipeline.Reducer) {
		return fmt.Errorf("unknown pipeline reducer %q (must be one of %s)", c.Pipeline.Reducer, strings.Join(validReducers, ", "))
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.Protocol != "grpc" && c.Observability.Protocol != "http" {
		return fmt.Errorf("observability protocol must be 'grpc' or 'http', got %q", c.Observability.Protocol)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}
	return nil
}

// MissingAPIKey reports whether the selected provider needs a key that is
// not configured.
func (c *Config) MissingAPIKey() bool {
	switch c.LLM.Provider {
	case "openai", "groq", "anthropic":
		return !c.LLM.APIKey.IsSet()
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// applyProviderEnv fills empty llm.* settings from the variables each
// provider documents: OLLAMA_BASE_URL and OLLAMA_MODEL for Ollama, and the
// provider's *_API_KEY for hosted models.
func applyProviderEnv(cfg *Config) {
	switch cfg.LLM.Provider {
	case "ollama":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = os.Getenv("OLLAMA_MODEL")
		}
	case "openai", "groq", "anthropic":
		if !cfg.LLM.APIKey.IsSet() {
			cfg.LLM.APIKey = Secret(os.Getenv(strings.ToUpper(cfg.LLM.Provider) + "_API_KEY"))
		}
	}
}
