// Package config loads modelmux configuration from YAML, layering file
// values over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/modelmux/modelmux/llm"
)

// AnthropicSettings configures the Anthropic provider.
type AnthropicSettings struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OllamaSettings configures the Ollama provider.
type OllamaSettings struct {
	Host  string `yaml:"host,omitempty"`
	Model string `yaml:"model,omitempty"`
}

// OpenAISettings configures the OpenAI provider.
type OpenAISettings struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	Model        string `yaml:"model,omitempty"`
	Organization string `yaml:"organization,omitempty"`
}

// RetrySettings configures the retry engine. Delays are duration strings
// ("100ms", "2s", "5m").
type RetrySettings struct {
	MaxAttempts       int     `yaml:"max_attempts,omitempty"`
	BaseDelay         string  `yaml:"base_delay,omitempty"`
	MaxDelay          string  `yaml:"max_delay,omitempty"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty"`
	JitterFraction    float64 `yaml:"jitter_fraction,omitempty"`
}

// LogSettings configures logging output.
type LogSettings struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// Settings is the top-level modelmux configuration.
type Settings struct {
	// Providers lists the enabled providers in preference order.
	Providers []string `yaml:"providers,omitempty"`

	Anthropic AnthropicSettings `yaml:"anthropic,omitempty"`
	Ollama    OllamaSettings    `yaml:"ollama,omitempty"`
	OpenAI    OpenAISettings    `yaml:"openai,omitempty"`

	Retry RetrySettings `yaml:"retry,omitempty"`
	Log   LogSettings   `yaml:"log,omitempty"`
}

// GetConfigPath returns the config file path. Can be overridden via the
// MODELMUX_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("MODELMUX_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.modelmux/config.yaml"
	}
	return filepath.Join(homeDir, ".modelmux", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// defaults returns the built-in configuration.
func defaults() Settings {
	retryDefaults := llm.DefaultRetryConfig()
	return Settings{
		Providers: []string{llm.ProviderAnthropic},
		Anthropic: AnthropicSettings{
			Model: "claude-haiku-4-5",
		},
		Ollama: OllamaSettings{
			Host:  "http://localhost:11434",
			Model: "llama3.2:3b",
		},
		OpenAI: OpenAISettings{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Retry: RetrySettings{
			MaxAttempts:       retryDefaults.MaxAttempts,
			BaseDelay:         retryDefaults.BaseDelay.String(),
			MaxDelay:          retryDefaults.MaxDelay.String(),
			BackoffMultiplier: retryDefaults.BackoffMultiplier,
			JitterFraction:    retryDefaults.JitterFraction,
		},
		Log: LogSettings{
			Level: "info",
		},
	}
}

// Load loads settings from the given path, merged over defaults. A missing
// file yields the defaults.
func Load(path string) (*Settings, error) {
	settings := defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		return &settings, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var fileSettings Settings
	if err := yaml.Unmarshal(configYAML, &fileSettings); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mergo.Merge(&settings, fileSettings, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	return &settings, nil
}

// Save writes settings to the specified path, creating directories as needed.
func Save(settings *Settings, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// RetryConfig converts the retry settings to an llm.RetryConfig, parsing
// duration strings.
func (s *Settings) RetryConfig() (llm.RetryConfig, error) {
	cfg := llm.DefaultRetryConfig()

	if s.Retry.MaxAttempts > 0 {
		cfg.MaxAttempts = s.Retry.MaxAttempts
	}
	if s.Retry.BaseDelay != "" {
		d, err := time.ParseDuration(s.Retry.BaseDelay)
		if err != nil {
			return llm.RetryConfig{}, fmt.Errorf("invalid base_delay %q: %w", s.Retry.BaseDelay, err)
		}
		cfg.BaseDelay = d
	}
	if s.Retry.MaxDelay != "" {
		d, err := time.ParseDuration(s.Retry.MaxDelay)
		if err != nil {
			return llm.RetryConfig{}, fmt.Errorf("invalid max_delay %q: %w", s.Retry.MaxDelay, err)
		}
		cfg.MaxDelay = d
	}
	if s.Retry.BackoffMultiplier > 0 {
		cfg.BackoffMultiplier = s.Retry.BackoffMultiplier
	}
	if s.Retry.JitterFraction > 0 {
		cfg.JitterFraction = s.Retry.JitterFraction
	}

	if err := cfg.Validate(); err != nil {
		return llm.RetryConfig{}, err
	}
	return cfg, nil
}

// ProviderConfig converts the settings to the registry's provider config.
func (s *Settings) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		AnthropicAPIKey: s.Anthropic.APIKey,
		AnthropicModel:  s.Anthropic.Model,
		OllamaHost:      s.Ollama.Host,
		OllamaModel:     s.Ollama.Model,
		OpenAIAPIKey:    s.OpenAI.APIKey,
		OpenAIBaseURL:   s.OpenAI.BaseURL,
		OpenAIModel:     s.OpenAI.Model,
		OpenAIOrg:       s.OpenAI.Organization,
	}
}
