package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/reelforge/internal/models"
)

func decode(t *testing.T, b []byte) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(b, &ev))
	return ev
}

func TestHubSubscribeStartsWithPing(t *testing.T) {
	h := NewHub(4, nil, nil)
	inbox, unsubscribe := h.Subscribe()
	assert.Equal(t, EventPing, decode(t, <-inbox).Type)
	assert.Equal(t, 1, h.Subscribers())

	unsubscribe()
	unsubscribe()
	_, open := <-inbox
	assert.False(t, open)
	assert.Zero(t, h.Subscribers())
}

func TestHubDropsSlowSubscriberOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	h := NewHub(8, m, nil)

	slow, _ := h.Subscribe()
	fast, unsubscribe := h.Subscribe()
	defer unsubscribe()
	<-fast

	for i := 0; i < 10; i++ {
		h.Publish(AgentMessage("t1", "assistant", "tick", time.Now()))
		select {
		case b := <-fast:
			assert.Equal(t, EventAgentMessage, decode(t, b).Type)
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber missed event %d", i)
		}
	}

	n := 0
	for range slow {
		n++
	}
	assert.Equal(t, 8, n, "slow inbox holds what fit before it was dropped")
	assert.Equal(t, 1, h.Subscribers())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedSubs))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.events.WithLabelValues("agent_message")))
}

func TestEventWireShapes(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tool := ToolUpdate("t1", models.ToolImages, models.ToolState{Status: models.ToolRunning, Retries: 1, LastUpdate: ts})
	b, err := json.Marshal(tool)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_update","task_id":"t1","tool":"generate_images","info":{"status":"running","retries":1,"last_update":"2024-05-01T12:00:00Z"}}`, string(b))

	b, err = json.Marshal(AgentMessage("t1", "user", "hi", ts))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"agent_message","task_id":"t1","role":"user","message":"hi","timestamp":"2024-05-01T12:00:00Z"}`, string(b))

	b, err = json.Marshal(TaskUpdate(&models.Task{ID: "t1", Status: models.StatusPending, NovelText: strings.Repeat("chapter ", 4096)}))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "chapter")
	assert.Less(t, len(b), 1024)
	var got struct {
		Type string         `json:"type"`
		Task map[string]any `json:"task"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "task_update", got.Type)
	assert.Equal(t, "t1", got.Task["task_id"])
	assert.Equal(t, "pending", got.Task["status"])
	assert.NotContains(t, got.Task, "novel_text")
}

func TestNewTaskValidation(t *testing.T) {
	def := Defaults{QualityTarget: 0.8, MaxAttempts: 3}
	now := time.Now()

	task, err := NewTask(Submission{ProjectName: " novel ", NovelText: "text"}, def, now)
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, models.ModeWorkflow, task.Mode)
	assert.Equal(t, "novel", task.ProjectName)
	assert.Equal(t, 0.8, task.QualityTarget)
	assert.Equal(t, 3, task.MaxAttempts)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Len(t, task.ToolStatus, len(models.Tools))

	half, zero, over := 0.5, 0.0, 1.5
	task, err = NewTask(Submission{Mode: "AGENT", ProjectName: "p", Resume: true, QualityTarget: &half, MaxAttempts: 5}, def, now)
	require.NoError(t, err)
	assert.Equal(t, models.ModeAgent, task.Mode)
	assert.Equal(t, 0.5, task.QualityTarget)
	assert.Equal(t, 5, task.MaxAttempts)

	task, err = NewTask(Submission{ProjectName: "p", NovelText: "x", QualityTarget: &zero}, def, now)
	require.NoError(t, err)
	assert.Zero(t, task.QualityTarget, "an explicit zero target is kept")

	bad := []Submission{
		{Mode: "batch", ProjectName: "p", NovelText: "x"},
		{ProjectName: "", NovelText: "x"},
		{ProjectName: "../etc", NovelText: "x"},
		{ProjectName: "..", NovelText: "x"},
		{ProjectName: "p"},
		{ProjectName: "p", Resume: true},
		{ProjectName: "p", NovelText: "x", QualityTarget: &over},
	}
	for _, sub := range bad {
		_, err := NewTask(sub, def, now)
		assert.ErrorIs(t, err, ErrInvalidSubmission, "%+v", sub)
	}
}

func TestPauseGateCheckpoint(t *testing.T) {
	g := NewPauseGate()
	require.NoError(t, g.Checkpoint(context.Background(), "t1"))

	assert.True(t, g.Pause("t1"))
	assert.False(t, g.Pause("t1"))
	assert.True(t, g.Paused("t1"))

	released := make(chan error, 1)
	go func() { released <- g.Checkpoint(context.Background(), "t1") }()
	select {
	case <-released:
		t.Fatal("checkpoint returned while paused")
	case <-time.After(20 * time.Millisecond):
	}
	assert.True(t, g.Resume("t1"))
	assert.False(t, g.Resume("t1"))
	require.NoError(t, <-released)

	g.Pause("t2")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Checkpoint(ctx, "t2"), context.DeadlineExceeded)
}

func TestMessageLogSince(t *testing.T) {
	l := NewMessageLog()
	now := time.Now()
	l.Append("t1", "first", now)
	l.Append("t1", "second", now)
	l.Append("t2", "other", now)

	got := l.Since("t1", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Message)
	got[0].Message = "mutated"
	assert.Equal(t, "second", l.All("t1")[1].Message)

	assert.Nil(t, l.Since("t1", 2))
	assert.Len(t, l.Since("t1", -1), 2)

	l.Forget("t1")
	assert.Empty(t, l.All("t1"))
	assert.Len(t, l.All("t2"), 1)
}
