package llm

import (
	"context"
	"fmt"

	"github.com/a-kowalski/mindkeep/internal/config"
)

// Provider abstracts a text-generation backend. The learning engine only
// ever needs a single-shot completion: system prompt in, text out.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// NewProvider builds the provider selected by configuration.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.LLMProvider {
	case "", "openai", "ollama":
		// Any OpenAI-compatible endpoint, Ollama included.
		return NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.LLMAPIKey, cfg.LLMModel), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}
