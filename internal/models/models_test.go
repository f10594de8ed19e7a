package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTransitionForwardOnly(t *testing.T) {
	now := time.Now()
	task := &Task{Status: StatusPending}

	require.Error(t, task.Transition(StatusCompleted, now))
	require.NoError(t, task.Transition(StatusRunning, now))
	require.NotNil(t, task.StartedAt)
	require.ErrorIs(t, task.Transition(StatusPending, now), ErrInvalidTransition)
	require.NoError(t, task.Transition(StatusFailed, now))
	require.NotNil(t, task.EndedAt)

	// terminal states absorb
	assert.ErrorIs(t, task.Transition(StatusRunning, now), ErrInvalidTransition)
	assert.ErrorIs(t, task.Transition(StatusCompleted, now), ErrInvalidTransition)
	assert.Equal(t, StatusFailed, task.Status)
}

func TestTaskProgressMonotonic(t *testing.T) {
	task := &Task{}
	task.SetProgress(45)
	task.SetProgress(22)
	assert.Equal(t, 45, task.Progress)
	task.SetProgress(250)
	assert.Equal(t, 100, task.Progress)
}

func TestStepProgress(t *testing.T) {
	assert.Equal(t, 0, StepProgress(0))
	assert.Equal(t, 22, StepProgress(1))
	assert.Equal(t, 45, StepProgress(2))
	assert.Equal(t, 67, StepProgress(3))
	assert.Equal(t, 90, StepProgress(4))
	assert.Equal(t, 90, StepProgress(9))
}

func TestTaskLogRetention(t *testing.T) {
	task := &Task{}
	for i := 0; i < 5; i++ {
		task.AppendLog(LogEntry{Message: string(rune('a' + i))}, 3)
	}
	require.Len(t, task.Log, 3)
	assert.Equal(t, "c", task.Log[0].Message)
	assert.Equal(t, "e", task.Log[2].Message)
}

func TestTaskSnapshotIsolation(t *testing.T) {
	score := 0.4
	task := &Task{ToolStatus: NewToolStatusTable(), QualityScore: &score}
	task.AppendLog(LogEntry{Message: "x"}, 0)

	snap := task.Snapshot()
	_, err := task.ToolStatus.Transition(ToolAudio, ToolRunning, time.Now())
	require.NoError(t, err)
	*task.QualityScore = 0.9
	task.Log[0].Message = "changed"

	assert.Equal(t, ToolIdle, snap.ToolStatus[ToolAudio].Status)
	assert.Equal(t, 0.4, *snap.QualityScore)
	assert.Equal(t, "x", snap.Log[0].Message)
}

func TestToolStatusTransitions(t *testing.T) {
	now := time.Now()
	table := NewToolStatusTable()

	_, err := table.Transition(ToolImages, ToolDone, now)
	assert.ErrorIs(t, err, ErrInvalidToolTransition)

	st, err := table.Transition(ToolImages, ToolRunning, now)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Retries)

	st, err = table.Transition(ToolImages, ToolError, now)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Retries)

	st, err = table.Transition(ToolImages, ToolRunning, now)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Retries, "error -> running counts a retry")

	_, err = table.Transition(ToolImages, ToolDone, now)
	require.NoError(t, err)

	st, err = table.Transition(ToolImages, ToolRunning, now)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Retries, "done -> running is a re-run, not a retry")

	_, err = table.Transition(ToolImages, ToolRunning, now)
	assert.ErrorIs(t, err, ErrInvalidToolTransition)
}

func TestToolStatusFailRunning(t *testing.T) {
	now := time.Now()
	table := NewToolStatusTable()
	_, _ = table.Transition(ToolAudio, ToolRunning, now)
	_, _ = table.Transition(ToolAudio, ToolDone, now)
	_, _ = table.Transition(ToolPrompts, ToolRunning, now)

	touched := table.FailRunning(now)
	assert.Equal(t, []Tool{ToolPrompts}, touched)
	assert.Equal(t, ToolError, table[ToolPrompts].Status)
	assert.Equal(t, ToolDone, table[ToolAudio].Status)
}

func TestParseToolAndStep(t *testing.T) {
	tool, err := ParseTool(" Generate_Images ")
	require.NoError(t, err)
	assert.Equal(t, ToolImages, tool)

	tool, err = ParseTool("video")
	require.NoError(t, err)
	assert.Equal(t, ToolVideo, tool)

	_, err = ParseTool("adjust_parameters")
	assert.ErrorIs(t, err, ErrUnknownTool)

	st, ok := ParseStep("generate_video")
	assert.True(t, ok)
	assert.Equal(t, StepVideo, st)

	pred, ok := StepImages.Predecessor()
	assert.True(t, ok)
	assert.Equal(t, StepPrompts, pred)
	_, ok = StepAudio.Predecessor()
	assert.False(t, ok)
}

func TestResultWireShape(t *testing.T) {
	r := Success("ok", map[string]any{"video_path": "/x.mp4"})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","message":"ok","video_path":"/x.mp4"}`, string(b))

	var back Result
	require.NoError(t, json.Unmarshal([]byte(`{"status":"weird","overall_score":0.7,"issues":["a",1]}`), &back))
	assert.False(t, back.OK())
	score, ok := back.Float("overall_score")
	assert.True(t, ok)
	assert.Equal(t, 0.7, score)
	assert.Equal(t, []string{"a", "1"}, back.Strings("issues"))
}

func TestNextTool(t *testing.T) {
	assert.Equal(t, ToolAudio, NextTool(nil))
	assert.Equal(t, ToolPrompts, NextTool([]Step{StepAudio}))
	assert.Equal(t, ToolImages, NextTool([]Step{StepAudio, StepPrompts}))
	assert.Equal(t, ToolVideo, NextTool([]Step{StepAudio, StepPrompts, StepImages}))
	assert.Equal(t, ToolEvaluate, NextTool(Pipeline))
}
