package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/config"
)

// NewFromConfig builds the generation and embedding clients for the configured
// provider. The generation client is provider-specific; embeddings always use
// an OpenAI-compatible endpoint (Anthropic has no embedding API).
func NewFromConfig(cfg *config.AIConfig, logger *zap.Logger) (generation LLMClient, embedding LLMClient, err error) {
	embedding, err = NewClient(&Config{
		Endpoint: cfg.EmbeddingURL,
		Model:    cfg.EmbeddingModel,
		APIKey:   embeddingKey(cfg),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedding client: %w", err)
	}

	switch cfg.Provider {
	case "", "openai":
		generation, err = NewClient(&Config{
			Endpoint: cfg.LLMBaseURL,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
		}, logger)
	case "anthropic":
		generation, err = NewAnthropicClient(&Config{
			Model:  cfg.LLMModel,
			APIKey: cfg.LLMAPIKey,
		}, logger)
	default:
		return nil, nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create generation client: %w", err)
	}

	return generation, embedding, nil
}

// embeddingKey falls back to the LLM key when embeddings share the endpoint.
func embeddingKey(cfg *config.AIConfig) string {
	if cfg.EmbeddingKey != "" {
		return cfg.EmbeddingKey
	}
	if cfg.EmbeddingURL == cfg.LLMBaseURL {
		return cfg.LLMAPIKey
	}
	return ""
}
