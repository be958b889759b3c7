package engine

import "fmt"

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// SelectConfig holds the parameters needed to build any supported engine.
type SelectConfig struct {
	Provider      string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OllamaBaseURL string
}

// Select returns the engine for cfg.Provider. An empty provider selects OpenAI.
func Select(cfg SelectConfig) (Engine, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}
