package llm

import (
	"fmt"
	"os"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// Preference represents a single provider/model preference. Callers list
// preferences in order; resolution picks the first usable one.
type Preference struct {
	Provider string
	Model    string
}

// ClientKey uniquely identifies a resolved backend configuration.
// Client construction lives with the caller (see the config package) so this
// package stays free of provider SDK imports.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
}

// ProviderConfig holds the settings the registry needs to resolve a ClientKey.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry manages backend selection and configuration resolution.
type ProviderRegistry struct {
	enabledProviders map[string]bool
	mu               sync.RWMutex
	config           *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config
// and enabled providers.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string) *ProviderRegistry {
	enabledMap := make(map[string]bool)
	for _, p := range enabledProviders {
		enabledMap[p] = true
	}

	return &ProviderRegistry{
		enabledProviders: enabledMap,
		config:           providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabledProviders[provider]
}

// IsProviderConfigured checks if a provider has the required configuration
// (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first enabled, configured provider in
// the preference list. With no preferences, the first enabled provider wins
// and its default model is used.
func (r *ProviderRegistry) Resolve(prefs []Preference) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(prefs) > 0 {
		var attempted []string
		for _, pref := range prefs {
			attempted = append(attempted, pref.Provider)

			if !r.enabledProviders[pref.Provider] {
				continue
			}
			if !r.isProviderConfiguredUnlocked(pref.Provider) {
				continue
			}

			key, err := r.resolveProviderConfig(pref.Provider, pref.Model)
			if err != nil {
				continue
			}
			return key, nil
		}

		return nil, fmt.Errorf("no available provider from preferences %v (enabled: %v)", attempted, r.enabledList())
	}

	if len(r.enabledProviders) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	var firstProvider string
	for p := range r.enabledProviders {
		firstProvider = p
		break
	}

	if !r.isProviderConfiguredUnlocked(firstProvider) {
		return nil, fmt.Errorf("first enabled provider %s is not configured", firstProvider)
	}

	key, err := r.resolveProviderConfig(firstProvider, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config for provider %s: %w", firstProvider, err)
	}
	return key, nil
}

// isProviderConfiguredUnlocked must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return apiKey != ""
	case ProviderOllama:
		// Ollama doesn't require an API key, just a host (which has a default)
		return true
	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return apiKey != ""
	default:
		return false
	}
}

// resolveProviderConfig resolves provider-specific configuration and returns
// a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = apiKey
		if key.Model == "" {
			key.Model = r.config.AnthropicModel
		}
		if key.Model == "" {
			key.Model = "claude-haiku-4-5" // Default Anthropic model
		}

	case ProviderOllama:
		host := r.config.OllamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434" // Default
		}
		key.Host = host

		defaultModel := r.config.OllamaModel
		if defaultModel == "" {
			defaultModel = os.Getenv("OLLAMA_MODEL")
		}
		if key.Model == "" {
			key.Model = defaultModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = apiKey

		baseURL := r.config.OpenAIBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.BaseURL = baseURL

		org := r.config.OpenAIOrg
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		key.Organization = org

		defaultModel := r.config.OpenAIModel
		if defaultModel == "" {
			defaultModel = os.Getenv("OPENAI_MODEL")
		}
		if key.Model == "" {
			key.Model = defaultModel
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

// enabledList returns the enabled providers (for error messages).
func (r *ProviderRegistry) enabledList() []string {
	var providers []string
	for p := range r.enabledProviders {
		providers = append(providers, p)
	}
	return providers
}
