package llm

import (
	"context"
	"fmt"
)

// AnthropicConfig placeholder for anthropic integration configuration.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// AnthropicClient is a stub implementation that can be expanded once the SDK
// is adopted.
type AnthropicClient struct{}

// NewAnthropicClient constructs a new stub client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic api key is required")
	}
	return &AnthropicClient{}, nil
}

// Evaluate is not yet implemented for Anthropic models.
func (a *AnthropicClient) Evaluate(ctx context.Context, prompt string, temperature float32) (string, error) {
	return "", fmt.Errorf("llm: anthropic client not implemented")
}

// Close is a no-op for the stub client.
func (a *AnthropicClient) Close() error { return nil }
