package llm

import (
	"context"
	"os"
	"strings"

	"github.com/example/reelforge/internal/logging"
)

const moonshotBaseURL = "https://api.moonshot.cn/v1"

// New returns a Client for cfg. Supported providers:
//   - openai:    OPENAI_API_KEY, optional OPENAI_API_BASE
//   - moonshot:  MOONSHOT_API_KEY (Kimi, OpenAI-compatible)
//   - anthropic: ANTHROPIC_API_KEY
//   - gemini:    GOOGLE_API_KEY
//
// With no provider set the first API key found in the environment wins.
// If nothing is configured, returns a MockClient.
func New(ctx context.Context, cfg Config, log logging.Logger) Client {
	log = logging.OrNop(log)
	prov := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if prov == "" {
		prov = detectProvider()
	}
	switch prov {
	case "openai":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = strings.TrimRight(firstNonEmpty(cfg.BaseURL, os.Getenv("OPENAI_API_BASE")), "/")
		if cfg.APIKey != "" {
			return NewOpenAIClient(cfg)
		}
	case "moonshot", "kimi":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("MOONSHOT_API_KEY"))
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, moonshotBaseURL)
		cfg.Model = firstNonEmpty(cfg.Model, "moonshot-v1-auto")
		if cfg.APIKey != "" {
			return NewOpenAIClient(cfg)
		}
	case "anthropic":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if cfg.APIKey != "" {
			return NewAnthropicClient(cfg)
		}
	case "gemini":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("GOOGLE_API_KEY"))
		if cfg.APIKey != "" {
			c, err := NewGeminiClient(ctx, cfg)
			if err == nil {
				return c
			}
			log.Error("gemini client unavailable, using mock", "error", err)
		}
	case "mock", "":
	default:
		log.Warn("unknown decision provider, using mock", "provider", prov)
	}
	if prov != "mock" {
		log.Info("no decision service configured, using mock", "provider", prov)
	}
	return &MockClient{}
}

func detectProvider() string {
	switch {
	case strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != "":
		return "openai"
	case strings.TrimSpace(os.Getenv("MOONSHOT_API_KEY")) != "":
		return "moonshot"
	case strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")) != "":
		return "anthropic"
	case strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")) != "":
		return "gemini"
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
