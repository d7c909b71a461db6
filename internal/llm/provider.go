package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/duckmesh/sqlagent/internal/config"
)

// New builds the configured backend. Gemini models hold a client that should
// be released with Close.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Model, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		model, err := NewGeminiModel(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return model, nil
	case config.ProviderOpenAI:
		model, err := NewOpenAIModel(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
