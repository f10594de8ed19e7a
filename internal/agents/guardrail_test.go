package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reelforge/internal/models"
)

func memWith(steps ...models.Step) *Memory {
	m := newMemory(Request{QualityTarget: 0.8, MaxAttempts: 3}, 0)
	m.StepsCompleted = steps
	return m
}

func TestDefaultAction(t *testing.T) {
	cases := []struct {
		steps []models.Step
		want  models.Tool
	}{
		{nil, models.ToolAudio},
		{[]models.Step{models.StepAudio}, models.ToolPrompts},
		{[]models.Step{models.StepAudio, models.StepPrompts}, models.ToolImages},
		{[]models.Step{models.StepAudio, models.StepPrompts, models.StepImages}, models.ToolVideo},
		{models.Pipeline, models.ToolEvaluate},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DefaultAction(c.steps).Tool, "steps %v", c.steps)
	}
}

func TestGuard(t *testing.T) {
	all := models.Pipeline
	cases := []struct {
		name      string
		mem       *Memory
		propose   models.Tool
		want      models.Tool
		overrides bool
	}{
		{"images before prompts", memWith(models.StepAudio), models.ToolImages, models.ToolPrompts, true},
		{"prompts before audio", memWith(), models.ToolPrompts, models.ToolAudio, true},
		{"video before images", memWith(models.StepAudio, models.StepPrompts), models.ToolVideo, models.ToolImages, true},
		{"in order", memWith(models.StepAudio), models.ToolPrompts, models.ToolPrompts, false},
		{"audio rerun", memWith(models.StepAudio, models.StepPrompts), models.ToolAudio, models.ToolImages, true},
		{"early evaluation", memWith(models.StepAudio), models.ToolEvaluate, models.ToolPrompts, true},
		{"image regeneration", memWith(all...), models.ToolImages, models.ToolImages, false},
		{"stale video rerun", memWith(all...), models.ToolVideo, models.ToolEvaluate, true},
		{"first inspection", memWith(), models.ToolInspect, models.ToolInspect, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, violation := Guard(models.Action{Tool: c.propose}, c.mem)
			assert.Equal(t, c.want, got.Tool)
			assert.Equal(t, c.overrides, violation != "")
		})
	}
}

func TestGuardRepeatedInspection(t *testing.T) {
	m := memWith(models.StepAudio)
	require.NoError(t, m.apply(models.Action{Tool: models.ToolInspect}, models.Success("", map[string]any{"steps_completed": []string{"audio"}}), time.Now()))

	got, violation := Guard(models.Action{Tool: models.ToolInspect}, m)
	assert.Equal(t, models.ToolPrompts, got.Tool)
	assert.NotEmpty(t, violation)
}

func TestGuardVideoAfterRegeneration(t *testing.T) {
	m := memWith()
	now := time.Now()
	for _, tool := range []models.Tool{models.ToolAudio, models.ToolPrompts, models.ToolImages, models.ToolVideo, models.ToolImages} {
		require.NoError(t, m.apply(models.Action{Tool: tool}, models.Success("", nil), now))
	}
	got, violation := Guard(models.Action{Tool: models.ToolVideo}, m)
	assert.Equal(t, models.ToolVideo, got.Tool)
	assert.Empty(t, violation)
	assert.Equal(t, 1, m.Attempts)
}

func TestMemoryApply(t *testing.T) {
	now := time.Now()
	m := memWith()

	require.NoError(t, m.apply(models.Action{Tool: models.ToolAudio}, models.Failure("boom"), now))
	assert.Empty(t, m.StepsCompleted, "failed step is not recorded")

	require.NoError(t, m.apply(models.Action{Tool: models.ToolAudio}, models.Success("", nil), now))
	require.NoError(t, m.apply(models.Action{Tool: models.ToolAudio}, models.Success("", nil), now))
	assert.Equal(t, []models.Step{models.StepAudio}, m.StepsCompleted, "idempotent")

	err := m.apply(models.Action{Tool: models.ToolImages}, models.Success("", nil), now)
	assert.ErrorIs(t, err, ErrMemoryCorrupt)
}

func TestMemoryReconcileKeepsOrderedPrefix(t *testing.T) {
	m := memWith(models.Pipeline...)
	res := models.Success("", map[string]any{
		"steps_completed": []any{"generate_audio", "video"},
		"issues":          []any{"prompts missing"},
	})
	require.NoError(t, m.apply(models.Action{Tool: models.ToolInspect}, res, time.Now()))
	assert.Equal(t, []models.Step{models.StepAudio}, m.StepsCompleted)
	assert.Equal(t, []string{"prompts missing"}, m.Issues)
}

func TestMemoryAttemptsOnlyOnRegeneration(t *testing.T) {
	now := time.Now()
	m := memWith(models.StepAudio, models.StepPrompts)

	require.NoError(t, m.apply(models.Action{Tool: models.ToolImages}, models.Success("", nil), now))
	assert.Equal(t, 0, m.Attempts)
	require.NoError(t, m.apply(models.Action{Tool: models.ToolImages}, models.Failure("oom"), now))
	assert.Equal(t, 1, m.Attempts)
	require.NoError(t, m.apply(models.Action{Tool: models.ToolPrompts}, models.Success("", nil), now))
	assert.Equal(t, 1, m.Attempts)
}

func TestMemoryFinished(t *testing.T) {
	m := memWith(models.Pipeline...)
	assert.False(t, m.Finished(), "not evaluated yet")

	m.Evaluated, m.QualityScore = true, 0.85
	assert.True(t, m.Finished())

	m.QualityScore = 0.5
	assert.False(t, m.Finished())
	m.Attempts = 3
	assert.True(t, m.Finished())

	m = memWith(models.StepAudio)
	m.Attempts = 3
	assert.False(t, m.Finished(), "needs all four steps")
}

func TestHistoryIsBounded(t *testing.T) {
	m := newMemory(Request{MaxAttempts: 3}, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.apply(models.Action{Tool: models.ToolEvaluate}, models.Success("", nil), time.Now()))
	}
	assert.Len(t, m.History, 2)
}

func TestGuardVideoRerunSurvivesHistoryTrim(t *testing.T) {
	now := time.Now()
	applyAll := func(m *Memory, tools ...models.Tool) {
		for _, tool := range tools {
			require.NoError(t, m.apply(models.Action{Tool: tool}, models.Success("", nil), now))
		}
	}

	m := newMemory(Request{QualityTarget: 0.8, MaxAttempts: 5}, 2)
	applyAll(m, models.ToolAudio, models.ToolPrompts, models.ToolImages, models.ToolVideo, models.ToolImages, models.ToolEvaluate, models.ToolEvaluate)
	require.Len(t, m.History, 2)
	got, violation := Guard(models.Action{Tool: models.ToolVideo}, m)
	assert.Equal(t, models.ToolVideo, got.Tool)
	assert.Empty(t, violation)

	m = newMemory(Request{QualityTarget: 0.8, MaxAttempts: 5}, 2)
	applyAll(m, models.ToolAudio, models.ToolPrompts, models.ToolImages, models.ToolVideo, models.ToolEvaluate, models.ToolEvaluate)
	got, violation = Guard(models.Action{Tool: models.ToolVideo}, m)
	assert.Equal(t, models.ToolEvaluate, got.Tool)
	assert.NotEmpty(t, violation)
}
