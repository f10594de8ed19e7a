package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicClient struct {
	client    anthropic.Client
	Model     anthropic.Model
	MaxTokens int64
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{option.WithRequestTimeout(cfg.timeout())}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := anthropic.ModelClaude3_5Sonnet20241022
	if cfg.Model != "" {
		model = anthropic.Model(cfg.Model)
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), Model: model, MaxTokens: 1024}
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return nonEmpty(b.String())
}
