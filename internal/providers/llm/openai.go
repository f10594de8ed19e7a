package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including Moonshot (Kimi).
type OpenAIClient struct {
	client      openai.Client
	Model       string
	Temperature float64
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	opts := []option.RequestOption{option.WithRequestTimeout(cfg.timeout())}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIClient{client: openai.NewClient(opts...), Model: model, Temperature: 0.3}
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.Model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(c.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion: no choices")
	}
	return nonEmpty(resp.Choices[0].Message.Content)
}
