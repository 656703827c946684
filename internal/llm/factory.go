package llm

import (
	"context"
	"fmt"

	"stepwise/internal/config"
	"stepwise/internal/logger"
)

// NewProvider builds the configured provider wrapped as
// caller -> timeout -> logging -> provider. Failures are never retried.
func NewProvider(ctx context.Context, cfg config.LLMConfig, log *logger.Logger) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	return WithTimeout(WithLogging(base, log), cfg.Timeout), nil
}
