package models

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

type Mode string

const (
	ModeWorkflow Mode = "workflow"
	ModeAgent    Mode = "agent"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeWorkflow:
		return ModeWorkflow, nil
	case ModeAgent:
		return ModeAgent, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

var ErrInvalidTransition = errors.New("invalid task status transition")

// Task is one end-to-end generation request and its runtime state.
// While running it is mutated only by the scheduler's worker.
type Task struct {
	ID            string  `json:"task_id"`
	Mode          Mode    `json:"mode"`
	ProjectName   string  `json:"project_name"`
	NovelText     string  `json:"-"` // input only
	Timbre        string  `json:"timbre,omitempty"`
	QualityTarget float64 `json:"quality_target"`
	MaxAttempts   int     `json:"max_attempts"`
	// Resume starts an agent run with bootstrap inspection.
	Resume bool `json:"resume,omitempty"`

	Status       Status          `json:"status"`
	Paused       bool            `json:"paused"`
	Progress     int             `json:"progress"`
	CurrentStep  string          `json:"current_step"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"start_time,omitempty"`
	EndedAt      *time.Time      `json:"end_time,omitempty"`
	Error        string          `json:"error,omitempty"`
	ArtifactPath string          `json:"video_path,omitempty"`
	QualityScore *float64        `json:"quality_score"`
	ToolStatus   ToolStatusTable `json:"tool_status"`
	Log          []LogEntry      `json:"log,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
}

// Transition moves the task forward: pending -> running -> completed|failed.
func (t *Task) Transition(to Status, now time.Time) error {
	switch {
	case t.Status == StatusPending && to == StatusRunning:
		t.StartedAt = &now
	case t.Status == StatusRunning && to.Terminal():
		t.EndedAt = &now
		if to == StatusCompleted {
			t.Paused = false
		}
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// SetProgress never lowers progress and caps it at 100.
func (t *Task) SetProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p > t.Progress {
		t.Progress = p
	}
}

// AppendLog keeps at most limit entries, dropping the oldest. limit <= 0 keeps everything.
func (t *Task) AppendLog(e LogEntry, limit int) {
	t.Log = append(t.Log, e)
	if limit > 0 && len(t.Log) > limit {
		t.Log = append([]LogEntry(nil), t.Log[len(t.Log)-limit:]...)
	}
}

// Snapshot returns a deep copy safe to hand to readers outside the worker.
func (t *Task) Snapshot() *Task {
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.EndedAt != nil {
		v := *t.EndedAt
		c.EndedAt = &v
	}
	if t.QualityScore != nil {
		v := *t.QualityScore
		c.QualityScore = &v
	}
	c.ToolStatus = t.ToolStatus.Clone()
	c.Log = append([]LogEntry(nil), t.Log...)
	return &c
}

// StepProgress maps completed pipeline steps to a percentage, leaving the
// last 10% for the final quality pass.
func StepProgress(completed int) int {
	p := 90 * completed / len(Pipeline)
	if p > 90 {
		return 90
	}
	return p
}

// UserMessage is one entry of a task's append-only user message channel.
type UserMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
