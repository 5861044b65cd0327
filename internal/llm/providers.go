// CLAUDE:SUMMARY Factory that builds a multi-provider LLM Client from config (activates only providers with API keys, in config order)
package llm

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/redflag/internal/config"
)

// NewFromConfig creates a multi-provider LLM client from the application config.
// Only providers with configured API keys are activated; fallback follows
// the order below.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) *Client {
	var providers []Provider

	if cfg.GroqAPIKey != "" {
		providers = append(providers, NewCompatProvider(CompatConfig{
			Name:         "groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			APIKey:       cfg.GroqAPIKey,
			Models:       []string{"llama-3.1-8b-instant", "llama-3.3-70b-versatile"},
			DefaultModel: "llama-3.1-8b-instant",
		}))
	}

	if cfg.HuggingFaceKey != "" {
		providers = append(providers, NewCompatProvider(CompatConfig{
			Name:         "huggingface",
			BaseURL:      "https://router.huggingface.co/v1",
			APIKey:       cfg.HuggingFaceKey,
			Models:       []string{"meta-llama/Llama-3.1-8B-Instruct", "Qwen/Qwen2.5-7B-Instruct"},
			DefaultModel: "meta-llama/Llama-3.1-8B-Instruct",
		}))
	}

	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIAPIKey))
	}

	if cfg.GeminiAPIKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			slog.Warn("gemini provider disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicAPIKey))
	}

	return New(providers)
}
