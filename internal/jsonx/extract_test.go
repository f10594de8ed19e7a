package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		tool string
	}{
		{"bare", `{"tool":"generate_audio"}`, "generate_audio"},
		{"fenced", "```json\n{\"tool\": \"generate_prompts\"}\n```", "generate_prompts"},
		{"fence without hint", "```\n{\"tool\": \"compose_video\"}\n```", "compose_video"},
		{"prose around", "Sure! Here is my decision: {\"tool\": \"generate_images\", \"parameters\": {}} hope it helps", "generate_images"},
		{"braces inside strings", `{"tool":"evaluate_quality","reason":"close } early {"} trailing`, "evaluate_quality"},
		{"trailing comma", `{"tool": "generate_audio",}`, "generate_audio"},
		{"unterminated", `decision: {"tool": "inspect_project"`, "inspect_project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Extract(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.tool, m["tool"])
		})
	}
}

func TestExtractFailures(t *testing.T) {
	for _, in := range []string{"", "   ", "not json", "[1,2,3]"} {
		_, err := Extract(in)
		assert.ErrorIs(t, err, ErrNoJSON, "input %q", in)
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Reasoning string `json:"reasoning"`
	}
	require.NoError(t, Decode("```json\n{\"reasoning\":\"audio first\"}\n```", &v))
	assert.Equal(t, "audio first", v.Reasoning)
}
