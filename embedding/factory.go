package embedding

import (
	"fmt"
	"strings"
)

// Provider names accepted by NewProvider.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
}

// NewProvider builds the provider named by cfg.Provider. A model prefixed
// "ollama/" selects Ollama regardless of the provider name.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	name := strings.ToLower(cfg.Provider)
	model := cfg.Model
	if strings.HasPrefix(model, "ollama/") {
		name = ProviderOllama
		model = strings.TrimPrefix(model, "ollama/")
	}

	switch name {
	case "", ProviderHash:
		return NewHashProvider(cfg.Dimensions), nil
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return NewOllamaProvider(baseURL, model, cfg.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      model,
			Dimensions: cfg.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
