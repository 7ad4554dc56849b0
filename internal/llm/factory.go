package llm

import (
	"fmt"
	"strings"

	"github.com/edustack-labs/edustack/internal/config"
)

// NewProvider builds a completion backend from config. Groq's API is
// OpenAI-compatible, so "groq" is the OpenAI client pointed at the Groq
// endpoint.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}

	switch strings.TrimSpace(cfg.Provider) {
	case "", "groq":
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = groqBaseURL
		}
		return NewOpenAIProvider(OpenAIOptions{
			Name:        "groq",
			APIKey:      cfg.APIKey,
			BaseURL:     baseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		})
	case "openai", "openai-compatible":
		return NewOpenAIProvider(OpenAIOptions{
			Name:        cfg.Provider,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		})
	case "anthropic":
		return NewAnthropicProvider(AnthropicOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
