package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Client is the decision service contract: prompt in, free text out.
// Output is untrusted; callers extract and validate whatever they need.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

func (f ClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai, moonshot, anthropic, gemini, mock; empty = auto-detect
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 45 * time.Second
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
