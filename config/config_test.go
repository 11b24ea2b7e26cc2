package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelmux/modelmux/llm"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(settings.Providers) == 0 {
		t.Error("Expected default providers")
	}
	if settings.Ollama.Host != "http://localhost:11434" {
		t.Errorf("Expected default ollama host, got %q", settings.Ollama.Host)
	}
	if settings.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", settings.Log.Level)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
providers:
  - openai
  - ollama
openai:
  api_key: file-key
  model: gpt-4o
retry:
  max_attempts: 7
  base_delay: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(settings.Providers) != 2 || settings.Providers[0] != "openai" {
		t.Errorf("Expected file providers to win, got %v", settings.Providers)
	}
	if settings.OpenAI.APIKey != "file-key" {
		t.Errorf("Expected file API key, got %q", settings.OpenAI.APIKey)
	}
	if settings.OpenAI.Model != "gpt-4o" {
		t.Errorf("Expected file model, got %q", settings.OpenAI.Model)
	}
	// Fields the file leaves out keep their defaults.
	if settings.Ollama.Host != "http://localhost:11434" {
		t.Errorf("Expected default ollama host preserved, got %q", settings.Ollama.Host)
	}
	if settings.Retry.MaxAttempts != 7 {
		t.Errorf("Expected max_attempts 7, got %d", settings.Retry.MaxAttempts)
	}
	if settings.Retry.BaseDelay != "250ms" {
		t.Errorf("Expected base_delay '250ms', got %q", settings.Retry.BaseDelay)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("providers: [unclosed"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}

func TestRetryConfigParsesDurations(t *testing.T) {
	settings := &Settings{
		Retry: RetrySettings{
			MaxAttempts:       4,
			BaseDelay:         "100ms",
			MaxDelay:          "2s",
			BackoffMultiplier: 3.0,
			JitterFraction:    0.1,
		},
	}

	cfg, err := settings.RetryConfig()
	if err != nil {
		t.Fatalf("RetryConfig failed: %v", err)
	}
	if cfg.MaxAttempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseDelay != 100*time.Millisecond {
		t.Errorf("Expected 100ms base delay, got %v", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 2*time.Second {
		t.Errorf("Expected 2s max delay, got %v", cfg.MaxDelay)
	}
	if cfg.BackoffMultiplier != 3.0 {
		t.Errorf("Expected multiplier 3.0, got %v", cfg.BackoffMultiplier)
	}
}

func TestRetryConfigRejectsBadDuration(t *testing.T) {
	settings := &Settings{Retry: RetrySettings{BaseDelay: "not-a-duration"}}
	if _, err := settings.RetryConfig(); err == nil {
		t.Error("Expected an error for unparsable duration")
	}
}

func TestRetryConfigEmptyUsesDefaults(t *testing.T) {
	settings := &Settings{}
	cfg, err := settings.RetryConfig()
	if err != nil {
		t.Fatalf("RetryConfig failed: %v", err)
	}
	if cfg != llm.DefaultRetryConfig() {
		t.Errorf("Expected default retry config, got %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	settings := defaults()
	settings.Anthropic.APIKey = "saved-key"

	if err := Save(&settings, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Anthropic.APIKey != "saved-key" {
		t.Errorf("Expected saved API key to round-trip, got %q", loaded.Anthropic.APIKey)
	}
}

func TestProviderConfig(t *testing.T) {
	settings := &Settings{
		Anthropic: AnthropicSettings{APIKey: "a-key", Model: "a-model"},
		Ollama:    OllamaSettings{Host: "http://box:11434", Model: "llama3.2"},
		OpenAI:    OpenAISettings{APIKey: "o-key", BaseURL: "http://proxy", Model: "gpt-4o", Organization: "org"},
	}

	pc := settings.ProviderConfig()
	if pc.AnthropicAPIKey != "a-key" || pc.AnthropicModel != "a-model" {
		t.Errorf("Anthropic settings not carried: %+v", pc)
	}
	if pc.OllamaHost != "http://box:11434" || pc.OllamaModel != "llama3.2" {
		t.Errorf("Ollama settings not carried: %+v", pc)
	}
	if pc.OpenAIAPIKey != "o-key" || pc.OpenAIBaseURL != "http://proxy" || pc.OpenAIOrg != "org" {
		t.Errorf("OpenAI settings not carried: %+v", pc)
	}
}
