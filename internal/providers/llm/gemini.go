package llm

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	c, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}
	return &GeminiClient{client: c, model: c.GenerativeModel(name)}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	return nonEmpty(firstText(resp))
}

func (g *GeminiClient) Close() error { return g.client.Close() }

func firstText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
