package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/reelforge/internal/jsonx"
	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
	"github.com/example/reelforge/internal/providers/llm"
)

// Executor dispatches an action and always returns an envelope.
type Executor interface {
	Execute(ctx context.Context, a models.Action) models.Result
}

// Checkpointer is the suspension point before each step; it blocks while
// the task is paused.
type Checkpointer interface {
	Checkpoint(ctx context.Context, taskID string) error
}

// MessageSource exposes a task's append-only user messages.
type MessageSource interface {
	Since(taskID string, from int) []models.UserMessage
}

// Journal persists thinking lines next to the project output.
type Journal interface {
	AppendAgentLog(project string, ts time.Time, category, message string) error
}

// Request describes one agent run.
type Request struct {
	TaskID        string
	Project       string
	NovelText     string
	Timbre        string
	QualityTarget float64
	MaxAttempts   int
	// Resume makes the first action a bootstrap inspection.
	Resume bool
}

type StopReason string

const (
	StopGoal     StopReason = "goal"
	StopAttempts StopReason = "attempts"
	StopBudget   StopReason = "iterations"
)

// Outcome is the best available state when the loop exits. GoalAchieved
// means every step completed and the quality target was met.
type Outcome struct {
	GoalAchieved   bool          `json:"goal_achieved"`
	Reason         StopReason    `json:"stop_reason"`
	StepsCompleted []models.Step `json:"steps_completed"`
	QualityScore   *float64      `json:"quality_score"`
	Attempts       int           `json:"attempts"`
	Iterations     int           `json:"iterations"`
	ArtifactPath   string        `json:"video_path,omitempty"`
	Issues         []string      `json:"issues,omitempty"`
}

const (
	DefaultMaxAttempts   = 3
	DefaultMaxIterations = 30
	DefaultHistoryLimit  = 50
)

// Controller drives the observe, think, decide, guard, execute, update
// loop for one task at a time. It owns no task state; progress leaves
// through Observer.
type Controller struct {
	Client   llm.Client
	Tools    Executor
	Observer Observer
	Gate     Checkpointer
	Messages MessageSource
	Journal  Journal
	Log      logging.Logger

	// Interval is the pause between iterations, for decision service rate limits.
	Interval      time.Duration
	MaxIterations int
	HistoryLimit  int
	Now           func() time.Time
}

type run struct {
	c   *Controller
	req Request
	mem *Memory
	log logging.Logger
}

// Run loops until the goal is reached, the attempt ceiling is hit or the
// iteration budget runs out. Capability and decision failures never end
// the run; only bookkeeping, observer and context errors are returned.
func (c *Controller) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = DefaultMaxAttempts
	}
	budget := c.MaxIterations
	if budget <= 0 {
		budget = DefaultMaxIterations
	}
	hl := c.HistoryLimit
	if hl <= 0 {
		hl = DefaultHistoryLimit
	}
	r := &run{
		c:   c,
		req: req,
		mem: newMemory(req, hl),
		log: logging.OrNop(c.Log).With("component", "agent", "task_id", req.TaskID),
	}
	if err := r.note("goal", r.mem.Goal); err != nil {
		return r.outcome(0, ""), err
	}

	var (
		iter   int
		reason StopReason
	)
	for {
		if r.mem.Finished() {
			reason = StopGoal
			if !r.mem.targetMet() {
				reason = StopAttempts
			}
			break
		}
		if r.mem.Attempts >= r.mem.MaxAttempts {
			reason = StopAttempts
			break
		}
		if iter >= budget {
			reason = StopBudget
			break
		}
		if err := r.checkpoint(ctx); err != nil {
			return r.outcome(iter, reason), err
		}

		obs := r.observe()
		if err := r.noteMessages(obs.UserMessages); err != nil {
			return r.outcome(iter, reason), err
		}
		var action models.Action
		if iter == 0 && req.Resume {
			action = models.Action{Tool: models.ToolInspect, Rationale: "resume: reconcile with project state"}
		} else {
			th := r.think(ctx, obs)
			if err := r.note("thought", th.Reasoning); err != nil {
				return r.outcome(iter, reason), err
			}
			action = r.decide(ctx, obs, th)
		}
		iter++
		if err := r.step(ctx, action); err != nil {
			return r.outcome(iter, reason), err
		}
		if err := sleep(ctx, c.Interval); err != nil {
			return r.outcome(iter, reason), err
		}
	}

	switch reason {
	case StopAttempts:
		r.log.Warn("attempt ceiling reached, returning best result", "attempts", r.mem.Attempts)
		if err := r.note("stop", fmt.Sprintf("attempt ceiling %d reached", r.mem.MaxAttempts)); err != nil {
			return r.outcome(iter, reason), err
		}
	case StopBudget:
		r.log.Warn("iteration budget exhausted", "iterations", iter)
		if err := r.note("stop", fmt.Sprintf("iteration budget %d exhausted", budget)); err != nil {
			return r.outcome(iter, reason), err
		}
	}

	if r.mem.allSteps() && !r.mem.Evaluated {
		if err := r.checkpoint(ctx); err != nil {
			return r.outcome(iter, reason), err
		}
		final := models.Action{Tool: models.ToolEvaluate, Rationale: "final quality evaluation"}
		if err := r.step(ctx, final); err != nil {
			return r.outcome(iter, reason), err
		}
	}
	out := r.outcome(iter, reason)
	r.log.Info("agent run finished", "reason", out.Reason, "goal_achieved", out.GoalAchieved,
		"attempts", out.Attempts, "iterations", out.Iterations)
	return out, nil
}

func (r *run) checkpoint(ctx context.Context) error {
	if r.c.Gate == nil {
		return ctx.Err()
	}
	return r.c.Gate.Checkpoint(ctx, r.req.TaskID)
}

func (r *run) observe() Observation {
	obs := Observation{
		CurrentStep:    r.mem.CurrentStep,
		StepsCompleted: append([]models.Step(nil), r.mem.StepsCompleted...),
		QualityTarget:  r.mem.QualityTarget,
		Attempts:       r.mem.Attempts,
		MaxAttempts:    r.mem.MaxAttempts,
		Issues:         append([]string(nil), r.mem.Issues...),
	}
	if r.mem.Evaluated {
		q := r.mem.QualityScore
		obs.QualityScore = &q
	}
	if t, ok := r.mem.lastTool(); ok {
		obs.LastAction = t
	}
	if r.c.Messages != nil {
		msgs := r.c.Messages.Since(r.req.TaskID, r.mem.cursor)
		r.mem.cursor += len(msgs)
		for _, m := range msgs {
			obs.UserMessages = append(obs.UserMessages, m.Message)
		}
	}
	return obs
}

func (r *run) think(ctx context.Context, obs Observation) Thought {
	text, err := r.complete(ctx, thinkPrompt(obs))
	if err != nil {
		r.log.Info("think fell back", "error", err)
		return neutralThought(err.Error())
	}
	var th Thought
	if err := jsonx.Decode(text, &th); err != nil {
		r.log.Info("think reply unparseable", "error", err)
		return neutralThought("unparseable reply")
	}
	if th.Reasoning == "" {
		th.Reasoning = th.ProgressAnalysis
	}
	return th
}

// decide asks for a proposal and passes it through the guardrail. Any
// failure to obtain a usable proposal yields DefaultAction.
func (r *run) decide(ctx context.Context, obs Observation, th Thought) models.Action {
	steps := r.mem.StepsCompleted
	text, err := r.complete(ctx, decidePrompt(obs, th))
	if err != nil {
		r.log.Info("decide fell back", "error", err)
		return DefaultAction(steps)
	}
	var p proposal
	if err := jsonx.Decode(text, &p); err != nil {
		r.log.Info("decide reply unparseable", "error", err)
		return DefaultAction(steps)
	}
	tool, err := models.ParseTool(p.Tool)
	if err != nil {
		r.log.Info("decide proposed unusable tool", "tool", p.Tool)
		return DefaultAction(steps)
	}
	proposed := models.Action{Tool: tool, Parameters: p.Parameters, Rationale: p.Reason}
	action, violation := Guard(proposed, r.mem)
	if violation != "" {
		r.log.Warn("guardrail override", "proposed", tool, "executing", action.Tool, "violation", violation)
	}
	return action
}

func (r *run) complete(ctx context.Context, prompt string) (string, error) {
	if r.c.Client == nil {
		return "", errors.New("no decision client")
	}
	return r.c.Client.Complete(ctx, prompt)
}

// step executes one action and folds the result into memory and the
// observer.
func (r *run) step(ctx context.Context, a models.Action) error {
	a.Parameters = r.params(a.Parameters)
	now := r.now()
	if err := r.emit(Event{Kind: EventToolStarted, Tool: a.Tool, Time: now}); err != nil {
		return err
	}
	if err := r.note("execute", fmt.Sprintf("%s: %s", a.Tool, a.Rationale)); err != nil {
		return err
	}

	res := r.c.Tools.Execute(ctx, a)

	now = r.now()
	if err := r.emit(Event{Kind: EventToolFinished, Tool: a.Tool, Result: res, Time: now}); err != nil {
		return err
	}
	if err := r.mem.apply(a, res, now); err != nil {
		return err
	}
	if err := r.emit(Event{Kind: EventState, State: r.state(), Time: now}); err != nil {
		return err
	}
	msg := res.Message
	if msg == "" {
		msg = string(res.Status)
	}
	return r.note("result", fmt.Sprintf("%s %s: %s", a.Tool, res.Status, msg))
}

// params fills in the task inputs; the decision service may add keys but
// cannot retarget the task or project.
func (r *run) params(proposed map[string]any) map[string]any {
	out := make(map[string]any, len(proposed)+5)
	for k, v := range proposed {
		out[k] = v
	}
	out["task_id"] = r.req.TaskID
	out["project_name"] = r.req.Project
	if r.req.NovelText != "" {
		out["novel_text"] = r.req.NovelText
	}
	if _, ok := out["timbre"]; !ok && r.req.Timbre != "" {
		out["timbre"] = r.req.Timbre
	}
	if _, ok := out["quality_target"]; !ok {
		out["quality_target"] = r.req.QualityTarget
	}
	return out
}

func (r *run) state() State {
	s := State{
		StepsCompleted: append([]models.Step(nil), r.mem.StepsCompleted...),
		CurrentStep:    r.mem.CurrentStep,
		Attempts:       r.mem.Attempts,
		ArtifactPath:   r.mem.ArtifactPath,
		Progress:       r.mem.progress(),
	}
	if r.mem.Evaluated {
		q := r.mem.QualityScore
		s.QualityScore = &q
	}
	return s
}

func (r *run) noteMessages(msgs []string) error {
	for _, m := range msgs {
		if err := r.note("user message", m); err != nil {
			return err
		}
	}
	return nil
}

// note records a thinking line durably and hands it to the observer.
func (r *run) note(category, message string) error {
	now := r.now()
	if r.c.Journal != nil && r.req.Project != "" {
		if err := r.c.Journal.AppendAgentLog(r.req.Project, now, category, message); err != nil {
			r.log.Warn("agent log write failed", "error", err)
		}
	}
	r.log.Debug(message, "category", category)
	return r.emit(Event{Kind: EventThought, Category: category, Message: message, Time: now})
}

func (r *run) emit(ev Event) error {
	if r.c.Observer == nil {
		return nil
	}
	if err := r.c.Observer.Observe(ev); err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	return nil
}

func (r *run) now() time.Time {
	if r.c.Now != nil {
		return r.c.Now()
	}
	return time.Now()
}

func (r *run) outcome(iter int, reason StopReason) Outcome {
	out := Outcome{
		GoalAchieved:   r.mem.allSteps() && r.mem.targetMet(),
		Reason:         reason,
		StepsCompleted: append([]models.Step(nil), r.mem.StepsCompleted...),
		Attempts:       r.mem.Attempts,
		Iterations:     iter,
		ArtifactPath:   r.mem.ArtifactPath,
		Issues:         append([]string(nil), r.mem.Issues...),
	}
	if r.mem.Evaluated {
		q := r.mem.QualityScore
		out.QualityScore = &q
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
