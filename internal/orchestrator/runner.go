package orchestrator

import (
	"context"
	"fmt"

	"github.com/example/reelforge/internal/agents"
	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
)

// WorkflowRunner runs the four steps in their fixed order and then a
// non-fatal quality pass. A tool already done on the task is skipped.
type WorkflowRunner struct {
	Tools agents.Executor
	Gate  agents.Checkpointer
	Log   logging.Logger
}

func (w *WorkflowRunner) Run(ctx context.Context, task *models.Task, tr *Tracker) error {
	log := logging.OrNop(w.Log).With("component", "workflow", "task_id", task.ID)
	params := taskParams(task)

	for i, step := range models.Pipeline {
		tool := step.Tool()
		if tr.ToolDone(tool) {
			log.Debug("step already done", "step", step)
			tr.Progress(models.StepProgress(i+1), string(step))
			continue
		}
		if err := w.checkpoint(ctx, task.ID); err != nil {
			return err
		}
		res, err := w.exec(ctx, tr, tool, params)
		if err != nil {
			return err
		}
		if !res.OK() {
			log.Error("step failed", "step", step, "message", res.Message)
			return fmt.Errorf("%s failed: %s", step, res.Message)
		}
		tr.Log("result", fmt.Sprintf("%s: %s", tool, res.Message))
		tr.Progress(models.StepProgress(i+1), string(step))
	}

	if err := w.checkpoint(ctx, task.ID); err != nil {
		return err
	}
	res, err := w.exec(ctx, tr, models.ToolEvaluate, params)
	if err != nil {
		return err
	}
	if !res.OK() {
		log.Warn("quality evaluation failed", "message", res.Message)
		return nil
	}
	if score, ok := res.Float("overall_score"); ok {
		tr.SetQuality(score)
	}
	tr.Log("result", fmt.Sprintf("%s: %s", models.ToolEvaluate, res.Message))
	return nil
}

func (w *WorkflowRunner) checkpoint(ctx context.Context, id string) error {
	if w.Gate == nil {
		return ctx.Err()
	}
	return w.Gate.Checkpoint(ctx, id)
}

func (w *WorkflowRunner) exec(ctx context.Context, tr *Tracker, tool models.Tool, params map[string]any) (models.Result, error) {
	if err := tr.ToolStarted(tool); err != nil {
		return models.Result{}, err
	}
	res := w.Tools.Execute(ctx, models.Action{Tool: tool, Parameters: params})
	if err := tr.ToolFinished(tool, res); err != nil {
		return res, err
	}
	return res, nil
}

func taskParams(t *models.Task) map[string]any {
	return map[string]any{
		"task_id":        t.ID,
		"project_name":   t.ProjectName,
		"novel_text":     t.NovelText,
		"timbre":         t.Timbre,
		"quality_target": t.QualityTarget,
	}
}

// AgentRunner hands the task to a copy of Controller whose observer is the
// task's tracker. Only an exhausted iteration budget with steps missing
// fails the task; an attempt ceiling completes it with whatever was built.
type AgentRunner struct {
	Controller *agents.Controller
}

func (a *AgentRunner) Run(ctx context.Context, task *models.Task, tr *Tracker) error {
	c := *a.Controller
	c.Observer = tr
	out, err := c.Run(ctx, agents.Request{
		TaskID:        task.ID,
		Project:       task.ProjectName,
		NovelText:     task.NovelText,
		Timbre:        task.Timbre,
		QualityTarget: task.QualityTarget,
		MaxAttempts:   task.MaxAttempts,
		Resume:        task.Resume,
	})
	if err != nil {
		return err
	}
	if len(out.StepsCompleted) == len(models.Pipeline) {
		return nil
	}
	if out.Reason == agents.StopBudget {
		return fmt.Errorf("stopped (%s) after %d iterations with steps %v", out.Reason, out.Iterations, out.StepsCompleted)
	}
	tr.Log("stop", fmt.Sprintf("best result after %d attempts, steps %v", out.Attempts, out.StepsCompleted))
	return nil
}

// Dispatcher picks the runner for a task's mode.
type Dispatcher struct {
	Workflow Runner
	Agent    Runner
}

func (d Dispatcher) Run(ctx context.Context, task *models.Task, tr *Tracker) error {
	switch task.Mode {
	case models.ModeAgent:
		if d.Agent == nil {
			return fmt.Errorf("agent mode is not configured")
		}
		return d.Agent.Run(ctx, task, tr)
	default:
		if d.Workflow == nil {
			return fmt.Errorf("workflow mode is not configured")
		}
		return d.Workflow.Run(ctx, task, tr)
	}
}
