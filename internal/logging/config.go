package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/AvishManiar21/user-story-automation/internal/config"
)

// TraceLevel sits below Debug. Prompt and response bodies are logged here.
const TraceLevel = zapcore.Level(-2)

// maxPatternLen bounds redaction patterns.
const maxPatternLen = 200

// Config describes a logger.
type Config struct {
	Level  zapcore.Level
	Format string // json, console
	// Stderr writes entries to stderr instead of stdout.
	Stderr bool
	// OTEL tees entries into the OpenTelemetry log provider, when one is given.
	OTEL bool

	Sampling        SamplingConfig
	Caller          bool
	StacktraceLevel zapcore.Level
	Fields          map[string]string
	Redaction       RedactionConfig
}

// SamplingConfig keeps the first Initial entries with the same message per
// Tick, then every Thereafter-th.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig lists credential keys and value patterns to mask.
type RedactionConfig struct {
	Enabled  bool
	Keys     []string
	Patterns []string
}

// NewDefaultConfig returns JSON output at info level with redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields:          map[string]string{"service": "storyforge"},
		Redaction: RedactionConfig{
			Enabled: true,
			Keys: []string{
				"api_key", "apikey", "authorization", "password",
				"secret", "token", "x-api-key",
			},
			Patterns: []string{
				`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`,
				`\bsk-[A-Za-z0-9_-]{16,}`,
				`\bgsk_[A-Za-z0-9]{20,}`,
				`(?i)api[_-]?key\s*[=:]\s*\S+`,
			},
		},
	}
}

// Validate checks c for settings NewLogger cannot honor.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			return errors.New("sampling tick must be positive")
		}
		if c.Sampling.Initial < 1 || c.Sampling.Thereafter < 0 {
			return fmt.Errorf("sampling needs initial >= 1 and thereafter >= 0, got %d/%d",
				c.Sampling.Initial, c.Sampling.Thereafter)
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q must have a key and a value", k)
		}
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > maxPatternLen {
				return fmt.Errorf("redaction pattern longer than %d characters", maxPatternLen)
			}
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
			}
		}
	}
	return nil
}

// LevelFromString parses a level name. "trace" maps to TraceLevel.
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// FromSettings applies the logging section of the application config to
// the defaults.
func FromSettings(s config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if s.Level != "" {
		level, err := LevelFromString(s.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
		}
		cfg.Level = level
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
