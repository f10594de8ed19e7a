package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_API_BASE", "MOONSHOT_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestNewFallsBackToMock(t *testing.T) {
	clearProviderEnv(t)
	c := New(context.Background(), Config{}, nil)
	assert.IsType(t, &MockClient{}, c)

	c = New(context.Background(), Config{Provider: "anthropic"}, nil)
	assert.IsType(t, &MockClient{}, c, "provider without key")

	c = New(context.Background(), Config{Provider: "nonsense"}, nil)
	assert.IsType(t, &MockClient{}, c)
}

func TestNewDetectsFromEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	assert.IsType(t, &AnthropicClient{}, New(context.Background(), Config{}, nil))
}

func TestNewMoonshotDefaults(t *testing.T) {
	clearProviderEnv(t)
	c := New(context.Background(), Config{Provider: "kimi", APIKey: "sk-test"}, nil)
	oc, ok := c.(*OpenAIClient)
	require.True(t, ok)
	assert.Equal(t, "moonshot-v1-auto", oc.Model)
}

func TestMockReplyHasNoTool(t *testing.T) {
	out, err := (&MockClient{}).Complete(context.Background(), "anything")
	require.NoError(t, err)
	assert.NotContains(t, out, `"tool"`)
}

func TestNonEmpty(t *testing.T) {
	_, err := nonEmpty("  \n")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
	s, err := nonEmpty("x")
	require.NoError(t, err)
	assert.Equal(t, "x", s)
}

func TestClientFunc(t *testing.T) {
	var c Client = ClientFunc(func(ctx context.Context, prompt string) (string, error) { return prompt + "!", nil })
	out, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}
