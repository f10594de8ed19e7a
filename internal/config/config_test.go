package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reelforge/internal/models"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "LLM_HTTP_TIMEOUT_MS", "LLM_PROVIDER", "LLM_MODEL", "OPENAI_API_BASE"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "./projects", cfg.ProjectsDir)
	assert.Equal(t, 2*time.Second, cfg.DecisionInterval)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 30, cfg.MaxIterations)
	assert.Equal(t, 0.8, cfg.QualityTarget)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Capabilities)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	file := writeFile(t, "reelforge.yaml", `
projects_dir: /data/projects
quality_target: 0.9
max_attempts: 2
decision_interval: 500ms
llm:
  provider: openai
  model: gpt-4o-mini
capabilities:
  generate_audio:
    command: ["python", "tts.py", "{project}"]
`)
	t.Setenv("REELFORGE_MAX_ATTEMPTS", "5")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("REELFORGE_CAPABILITIES_COMPOSE_VIDEO_COMMAND", "ffmpeg-wrap {project}")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, "/data/projects", cfg.ProjectsDir)
	assert.Equal(t, 0.9, cfg.QualityTarget)
	assert.Equal(t, 5, cfg.MaxAttempts, "environment beats file")
	assert.Equal(t, 500*time.Millisecond, cfg.DecisionInterval)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, []string{"python", "tts.py", "{project}"}, cfg.Capabilities[models.ToolAudio])
	assert.Equal(t, []string{"ffmpeg-wrap", "{project}"}, cfg.Capabilities[models.ToolVideo])
}

func TestLegacyVariablesOnlyMoveDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LLM_HTTP_TIMEOUT_MS", "1500")

	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 1500*time.Millisecond, cfg.LLM.Timeout)

	v = viper.New()
	SetDefaults(v)
	v.Set("addr", ":7000")
	cfg, err = FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	v := viper.New()
	SetDefaults(v)
	v.Set("quality_target", 1.5)
	v.Set("max_attempts", 0)
	_, err := FromViper(v)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "quality_target")
	assert.Contains(t, err.Error(), "max_attempts")
}
