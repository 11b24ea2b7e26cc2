package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/modelmux/modelmux/llm"
	"github.com/modelmux/modelmux/llm/anthropic"
	"github.com/modelmux/modelmux/llm/ollama"
	"github.com/modelmux/modelmux/llm/openai"
	"github.com/modelmux/modelmux/logger"
)

// NewLogger initializes the logger from the settings' log section: output
// file (stdout when empty) and level.
func NewLogger(settings *Settings) (zerolog.Logger, error) {
	return logger.InitWithLevel(settings.Log.File, settings.Log.Level, false)
}

// NewClientForKey constructs the provider client a resolved ClientKey names.
func NewClientForKey(key *llm.ClientKey, logger zerolog.Logger) (llm.Client, error) {
	switch key.Provider {
	case llm.ProviderAnthropic:
		return anthropic.NewClient(key.APIKey, key.Model, logger)
	case llm.ProviderOllama:
		return ollama.NewClient(key.Host, key.Model, logger)
	case llm.ProviderOpenAI:
		return openai.NewClient(key.APIKey, key.BaseURL, key.Model, key.Organization, logger)
	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}

// BuildClient resolves a provider from the settings and preference list, then
// wraps it with retry handling and request logging. Passing no preferences
// resolves the first enabled provider.
func BuildClient(settings *Settings, prefs []llm.Preference, logger zerolog.Logger) (llm.Client, error) {
	registry := llm.NewProviderRegistry(settings.ProviderConfig(), settings.Providers)

	key, err := registry.Resolve(prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider: %w", err)
	}

	client, err := NewClientForKey(key, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", key.Provider, err)
	}

	retryCfg, err := settings.RetryConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid retry settings: %w", err)
	}

	retried, err := llm.WithRetry(client, retryCfg, logger)
	if err != nil {
		return nil, err
	}

	return llm.WrapWithMiddleware(retried, llm.NewLoggingMiddleware(logger)), nil
}
