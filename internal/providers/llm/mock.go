package llm

import "context"

// MockClient is used when no real provider is configured. Its replies carry
// no tool choice, so the agent falls back to the canonical pipeline order.
type MockClient struct{}

func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return `{"progress_analysis":"offline","next_step_suggestion":"continue the pipeline","reasoning":"no decision service configured"}`, nil
}
