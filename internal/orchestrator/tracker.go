package orchestrator

import (
	"fmt"

	"github.com/example/reelforge/internal/agents"
	"github.com/example/reelforge/internal/models"
)

// Tracker is a runner's handle on its task. Every mutation happens under
// the scheduler lock and is published to the hub afterwards.
type Tracker struct {
	s    *Scheduler
	task *models.Task
}

func (tr *Tracker) TaskID() string { return tr.task.ID }

// ToolStarted marks tool running and makes it the current step.
func (tr *Tracker) ToolStarted(tool models.Tool) error {
	now := tr.s.now()
	var (
		st    models.ToolState
		retry bool
	)
	snap, err := tr.s.update(tr.task, func(t *models.Task) error {
		retry = t.ToolStatus[tool].Status == models.ToolError
		var err error
		st, err = t.ToolStatus.Transition(tool, models.ToolRunning, now)
		if err != nil {
			return err
		}
		t.CurrentStep = string(tool)
		return nil
	})
	if err != nil {
		return err
	}
	if retry {
		tr.s.metrics.IncToolRetry(tool)
	}
	tr.s.publish(ToolUpdate(tr.task.ID, tool, st))
	tr.s.publish(TaskUpdate(snap))
	return nil
}

// ToolFinished records the outcome of a tool that ToolStarted opened.
func (tr *Tracker) ToolFinished(tool models.Tool, res models.Result) error {
	now := tr.s.now()
	to := models.ToolDone
	if !res.OK() {
		to = models.ToolError
	}
	var st models.ToolState
	snap, err := tr.s.update(tr.task, func(t *models.Task) error {
		var err error
		st, err = t.ToolStatus.Transition(tool, to, now)
		if err != nil {
			return err
		}
		if p := res.String("video_path"); p != "" && res.OK() {
			t.ArtifactPath = p
		}
		return nil
	})
	if err != nil {
		return err
	}
	tr.s.metrics.IncToolRun(tool, to)
	tr.s.publish(ToolUpdate(tr.task.ID, tool, st))
	tr.s.publish(TaskUpdate(snap))
	return nil
}

// Progress raises the task's progress and optionally its current step.
func (tr *Tracker) Progress(p int, step string) {
	snap, _ := tr.s.update(tr.task, func(t *models.Task) error {
		t.SetProgress(p)
		if step != "" {
			t.CurrentStep = step
		}
		return nil
	})
	tr.s.publish(TaskUpdate(snap))
}

// SetQuality records an evaluation score.
func (tr *Tracker) SetQuality(score float64) {
	snap, _ := tr.s.update(tr.task, func(t *models.Task) error {
		t.QualityScore = &score
		return nil
	})
	tr.s.publish(TaskUpdate(snap))
}

// Log appends to the task log and announces it as an agent message.
func (tr *Tracker) Log(category, message string) {
	now := tr.s.now()
	_, _ = tr.s.update(tr.task, func(t *models.Task) error {
		t.AppendLog(models.LogEntry{Timestamp: now, Category: category, Message: message}, tr.s.logLimit)
		return nil
	})
	tr.s.publish(AgentMessage(tr.task.ID, "assistant", fmt.Sprintf("%s: %s", category, message), now))
}

// ToolDone reports the live status of tool.
func (tr *Tracker) ToolDone(tool models.Tool) bool {
	tr.s.mu.Lock()
	defer tr.s.mu.Unlock()
	return tr.task.ToolStatus.Done(tool)
}

// Observe adapts controller events onto the task.
func (tr *Tracker) Observe(ev agents.Event) error {
	switch ev.Kind {
	case agents.EventToolStarted:
		return tr.ToolStarted(ev.Tool)
	case agents.EventToolFinished:
		return tr.ToolFinished(ev.Tool, ev.Result)
	case agents.EventState:
		st := ev.State
		snap, _ := tr.s.update(tr.task, func(t *models.Task) error {
			t.SetProgress(st.Progress)
			if st.CurrentStep != "" {
				t.CurrentStep = st.CurrentStep
			}
			if st.QualityScore != nil {
				q := *st.QualityScore
				t.QualityScore = &q
			}
			if st.ArtifactPath != "" {
				t.ArtifactPath = st.ArtifactPath
			}
			return nil
		})
		tr.s.publish(TaskUpdate(snap))
	case agents.EventThought:
		tr.Log(ev.Category, ev.Message)
	}
	return nil
}

var _ agents.Observer = (*Tracker)(nil)
