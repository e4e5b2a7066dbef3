package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the variables that feed configuration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "OUTPUT_DIR", "LLM_PROVIDER", "OLLAMA_BASE_URL", "OLLAMA_MODEL",
		"OPENAI_API_KEY", "GROQ_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, int64(16*1024*1024), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	assert.Equal(t, 2*time.Minute, cfg.LLM.CallTimeout)
	assert.Equal(t, 5, cfg.Pipeline.Threshold)
	assert.Equal(t, 0.6, cfg.Pipeline.DedupeThreshold)
	assert.Equal(t, "fold", cfg.Pipeline.Reducer)
	assert.Equal(t, "json_output", cfg.Pipeline.OutputDir)
	assert.Equal(t, "json_output", cfg.Pipeline.IntegrationDir)
	assert.Equal(t, "stories.integrated", cfg.NATS.SubjectPrefix)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProviderEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		provider string
		keySet   bool
		baseURL  string
	}{
		{
			name:     "ollama default",
			env:      map[string]string{"OLLAMA_BASE_URL": "http://gpu:11434", "OLLAMA_MODEL": "mistral"},
			provider: "ollama",
			baseURL:  "http://gpu:11434",
		},
		{
			name:     "openai key",
			env:      map[string]string{"LLM_PROVIDER": "OpenAI", "OPENAI_API_KEY": "sk-test"},
			provider: "openai",
			keySet:   true,
		},
		{
			name:     "groq without key",
			env:      map[string]string{"LLM_PROVIDER": "groq", "OPENAI_API_KEY": "sk-test"},
			provider: "groq",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := Load()
			assert.Equal(t, tt.provider, cfg.LLM.Provider)
			assert.Equal(t, tt.keySet, cfg.LLM.APIKey.IsSet())
			assert.Equal(t, tt.baseURL, cfg.LLM.BaseURL)
			assert.Equal(t, !tt.keySet && tt.provider != "ollama", cfg.MissingAPIKey())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "unknown llm provider"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"threshold", func(c *Config) { c.Pipeline.Threshold = -1 }, "threshold"},
		{"dedupe", func(c *Config) { c.Pipeline.DedupeThreshold = 1.5 }, "dedupe_threshold"},
		{"reducer", func(c *Config) { c.Pipeline.Reducer = "majority" }, "reducer"},
		{"otlp protocol", func(c *Config) { c.Observability.Protocol = "udp" }, "observability protocol"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"nats url", func(c *Config) { c.NATS.Enabled = true }, "nats url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithFile_YAMLAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 8080
llm:
  provider: groq
  api_key: gsk-from-file
  call_timeout: 45s
  temperature: 0
  allowed_models: [llama-3.1-8b-instant, mixtral-8x7b-32768]
pipeline:
  threshold: 3
  reducer: self_consistency
nats:
  enabled: true
  url: nats://localhost:4222
`, 0o600)
	t.Setenv("STORYFORGE_PIPELINE_THRESHOLD", "7")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "gsk-from-file", cfg.LLM.APIKey.Value())
	assert.Equal(t, 45*time.Second, cfg.LLM.CallTimeout)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.Equal(t, []string{"llama-3.1-8b-instant", "mixtral-8x7b-32768"}, cfg.LLM.AllowedModels)
	assert.Equal(t, 7, cfg.Pipeline.Threshold)
	assert.Equal(t, "self_consistency", cfg.Pipeline.Reducer)
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoadWithFile_PlainEnvBelowFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("OUTPUT_DIR", "/var/lib/storyforge")

	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "/var/lib/storyforge", cfg.Pipeline.OutputDir)
	assert.Equal(t, "/var/lib/storyforge", cfg.Pipeline.IntegrationDir)

	cfg, err = LoadWithFile(writeConfig(t, "server:\n  port: 9090\n", 0o600))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestLoadWithFile_Rejects(t *testing.T) {
	clearEnv(t)

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadWithFile(writeConfig(t, "server: [port", 0o600))
		assert.Error(t, err)
	})

	t.Run("failed validation", func(t *testing.T) {
		_, err := LoadWithFile(writeConfig(t, "pipeline:\n  reducer: vote\n", 0o600))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation failed")
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, maxConfigFileSize+1)
		for i := range big {
			big[i] = '#'
		}
		_, err := LoadWithFile(writeConfig(t, string(big), 0o600))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("world readable", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs on windows")
		}
		_, err := LoadWithFile(writeConfig(t, "server:\n  port: 8080\n", 0o644))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", envKey("STORYFORGE_SERVER_PORT"))
	assert.Equal(t, "llm.call_timeout", envKey("STORYFORGE_LLM_CALL_TIMEOUT"))
	assert.Equal(t, "pipeline.dedupe_threshold", envKey("STORYFORGE_PIPELINE_DEDUPE_THRESHOLD"))
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret("sk-live")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "sk-live", s.Value())

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(data))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())

	var back struct{ Key Secret }
	assert.Error(t, json.Unmarshal(data, &back))
	require.NoError(t, json.Unmarshal([]byte(`{"Key":"gsk_abc"}`), &back))
	assert.Equal(t, "gsk_abc", back.Key.Value())
}
