package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient provides generation through the Anthropic Messages API.
// Anthropic does not serve embeddings; CreateEmbedding and CreateEmbeddings
// return an error, so deployments using this provider pair it with a separate
// OpenAI-compatible embedding client.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates a new Anthropic generation client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("llm-anthropic"),
	}, nil
}

// GenerateResponse generates a chat completion response.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	temp := float32(temperature)

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      systemMessage,
		MaxTokens:   4096,
		Temperature: &temp,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			c.logger.Info("LLM request completed",
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens),
				zap.Duration("elapsed", time.Since(start)))
			return *block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in response")
}

// CreateEmbedding is not supported by the Anthropic API.
func (c *AnthropicClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not support embeddings; configure an OpenAI-compatible embedding endpoint")
}

// CreateEmbeddings is not supported by the Anthropic API.
func (c *AnthropicClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not support embeddings; configure an OpenAI-compatible embedding endpoint")
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the API endpoint identifier.
func (c *AnthropicClient) GetEndpoint() string {
	return "https://api.anthropic.com"
}
