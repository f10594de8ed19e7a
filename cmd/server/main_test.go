package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reelforge/internal/config"
	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
	"github.com/example/reelforge/internal/projects"
	"github.com/example/reelforge/internal/providers/llm"
	"github.com/example/reelforge/internal/tools"
)

func TestBuildRegistryBuiltinsOnly(t *testing.T) {
	store := projects.NewStore(t.TempDir())
	reg, err := buildRegistry(config.Config{QualityTarget: 0.8}, store, &llm.MockClient{}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, []models.Tool{models.ToolInspect, models.ToolEvaluate}, reg.Names())

	res := reg.Execute(context.Background(), models.Action{Tool: models.ToolAudio})
	assert.False(t, res.OK())
	assert.Contains(t, res.Message, "unknown tool")
}

func TestBuildRegistryCommands(t *testing.T) {
	store := projects.NewStore(t.TempDir())
	cfg := config.Config{
		QualityTarget: 0.8,
		Capabilities: map[models.Tool][]string{
			models.ToolAudio:    {"tts", "{project}"},
			models.ToolVideo:    {"compose", "{project}"},
			models.ToolEvaluate: {"judge"},
		},
	}
	reg, err := buildRegistry(cfg, store, &llm.MockClient{}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, []models.Tool{models.ToolInspect, models.ToolAudio, models.ToolVideo, models.ToolEvaluate}, reg.Names())

	video, ok := reg.Get(models.ToolVideo)
	require.True(t, ok)
	assert.IsType(t, &tools.VideoFallback{}, video)
	eval, ok := reg.Get(models.ToolEvaluate)
	require.True(t, ok)
	assert.IsType(t, &tools.CommandTool{}, eval)
}

func TestInspectCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tale", "Audio"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tale", "Audio", "Subtitles.json"), []byte(`{"total_sentences":3}`), 0o644))
	t.Setenv("REELFORGE_PROJECTS_DIR", root)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"inspect", "tale", "--config", writeConfig(t)})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"steps_completed": [`)
	assert.Contains(t, out.String(), `"audio"`)
	assert.Contains(t, out.String(), `"next_action": "generate_prompts"`)
}

func writeConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "reelforge.yaml")
	require.NoError(t, os.WriteFile(p, []byte("log:\n  level: error\n"), 0o644))
	return p
}
