package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1 << 20
	envPrefix         = "STORYFORGE_"
)

// defaults is the bottom configuration layer. The model and base URL stay
// empty so the gateway picks the provider's own.
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             5000,
	"server.shutdown_timeout": 10 * time.Second,
	"server.max_upload_bytes": int64(16 << 20),
	"server.upload_dir":       "uploads",

	"llm.provider":            "ollama",
	"llm.temperature":         0.3,
	"llm.max_tokens":          4096,
	"llm.call_timeout":        2 * time.Minute,
	"llm.requests_per_minute": 50.0,
	"llm.max_retries":         3,

	"pipeline.threshold":        5,
	"pipeline.parallel_samples": 1,
	"pipeline.dedupe_threshold": 0.6,
	"pipeline.reducer":          "fold",
	"pipeline.output_dir":       "json_output",

	"observability.service_name":  "storyforge",
	"observability.endpoint":      "localhost:4317",
	"observability.protocol":      "grpc",
	"observability.sampling_rate": 1.0,

	"logging.level":  "info",
	"logging.format": "json",

	"nats.subject_prefix": "stories.integrated",

	"watch.dir":    "inbox",
	"watch.settle": 750 * time.Millisecond,
}

// plainEnv maps the unprefixed variables storyforge has always honored.
var plainEnv = map[string]string{
	"PORT":         "server.port",
	"OUTPUT_DIR":   "pipeline.output_dir",
	"LLM_PROVIDER": "llm.provider",
}

// LoadWithFile loads configuration in layers, each overriding the last:
//
//  1. built-in defaults
//  2. PORT, OUTPUT_DIR and LLM_PROVIDER
//  3. the YAML file (~/.config/storyforge/config.yaml when configPath is "")
//  4. STORYFORGE_* variables
//
// Provider keys and Ollama settings (OPENAI_API_KEY, OLLAMA_BASE_URL, ...)
// then fill llm.* fields still empty. A missing file is not an error; an
// existing one must be owner-only and at most 1MB.
//
// STORYFORGE_ variables lose the prefix and the first underscore separates
// the section:
//
//	STORYFORGE_SERVER_PORT -> server.port
//	STORYFORGE_LLM_CALL_TIMEOUT -> llm.call_timeout
//	STORYFORGE_PIPELINE_DEDUPE_THRESHOLD -> pipeline.dedupe_threshold
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = path
	}

	k, err := baseLayers()
	if err != nil {
		return nil, err
	}
	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg, err := build(k)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Load returns defaults overridden by the unprefixed environment variables.
// It does not read a file and is not validated.
func Load() *Config {
	k, err := baseLayers()
	if err != nil {
		panic(err)
	}
	cfg, err := build(k)
	if err != nil {
		// Malformed PORT and friends fall back to the defaults.
		return Default()
	}
	return cfg
}

// Default returns the built-in configuration without consulting the
// environment.
func Default() *Config {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		panic(err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(err)
	}
	cfg.Pipeline.IntegrationDir = cfg.Pipeline.OutputDir
	return &cfg
}

func baseLayers() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	plain := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return plainEnv[key], value
	})
	if err := k.Load(plain, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	return k, nil
}

func build(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	applyProviderEnv(&cfg)
	if cfg.Pipeline.IntegrationDir == "" {
		cfg.Pipeline.IntegrationDir = cfg.Pipeline.OutputDir
	}
	return &cfg, nil
}

// readConfigFile returns nil content for a missing file. Checks run on the
// open descriptor so the file cannot be swapped in between.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if err := checkConfigFile(info); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return content, nil
}

func checkConfigFile(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// DefaultPath returns ~/.config/storyforge/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".config", "storyforge", "config.yaml"), nil
}

// envKey maps STORYFORGE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + field
}
