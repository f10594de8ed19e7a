package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/reelforge/internal/jsonx"
	"github.com/example/reelforge/internal/models"
	"github.com/example/reelforge/internal/projects"
	"github.com/example/reelforge/internal/providers/llm"
)

// InspectTool is the bootstrap inspection capability: it reports which
// steps already have durable output on disk.
type InspectTool struct{ Store *projects.Store }

func (t *InspectTool) Name() models.Tool { return models.ToolInspect }

func (t *InspectTool) Execute(ctx context.Context, params map[string]any) (models.Result, error) {
	name := paramString(params, "project_name")
	rep, err := t.Store.Inspect(name)
	if errors.Is(err, projects.ErrNotFound) {
		// a project that was never started is a valid, empty state
		return models.Success("project has no output yet", map[string]any{
			"steps_completed": []string{},
			"current_step":    "not started",
			"issues":          []string{},
			"next_action":     string(models.ToolAudio),
		}), nil
	}
	if err != nil {
		return models.Result{}, err
	}
	steps := make([]string, len(rep.StepsCompleted))
	for i, s := range rep.StepsCompleted {
		steps[i] = string(s)
	}
	data := map[string]any{
		"steps_completed":  steps,
		"current_step":     rep.CurrentStep,
		"issues":           rep.Issues,
		"next_action":      string(rep.NextAction),
		"total_scenes":     rep.TotalScenes,
		"completed_scenes": rep.CompletedScenes,
		"progress":         rep.Progress,
	}
	if rep.VideoPath != "" {
		data["video_path"] = rep.VideoPath
	}
	msg := fmt.Sprintf("inspection done, %d/%d steps complete, next: %s", len(steps), len(models.Pipeline), rep.NextAction)
	return models.Success(msg, data), nil
}

// EvaluateTool scores project output. With a Client set it asks the
// decision service and falls back to the file-based rules when the reply
// is unusable.
type EvaluateTool struct {
	Store  *projects.Store
	Client llm.Client
	Target float64
}

func (t *EvaluateTool) Name() models.Tool { return models.ToolEvaluate }

func (t *EvaluateTool) Execute(ctx context.Context, params map[string]any) (models.Result, error) {
	name := paramString(params, "project_name")
	ev, err := t.Store.Evaluate(name, t.Target)
	if err != nil {
		return models.Result{}, err
	}
	if t.Client != nil {
		if res, ok := t.askClient(ctx, name, ev); ok {
			return res, nil
		}
	}
	return models.Success(fmt.Sprintf("overall quality %.2f", ev.Overall), map[string]any{
		"overall_score": ev.Overall,
		"completeness":  ev.Completeness,
		"consistency":   ev.Consistency,
		"quality":       ev.Overall,
		"issues":        ev.Issues,
		"suggestions":   ev.Suggestions,
	}), nil
}

func (t *EvaluateTool) askClient(ctx context.Context, name string, ev *projects.Evaluation) (models.Result, bool) {
	rep, err := t.Store.Inspect(name)
	if err != nil {
		return models.Result{}, false
	}
	var b strings.Builder
	b.WriteString("Rate the generated images of this project between 0 and 1. Judge images only, not audio.\n\n")
	fmt.Fprintf(&b, "- scene prompts: %d\n- images generated: %d\n- final video: %v\n", rep.TotalScenes, rep.CompletedScenes, rep.Progress == 100)
	fmt.Fprintf(&b, "- rule-based completeness: %.2f, consistency: %.2f\n\n", ev.Completeness, ev.Consistency)
	b.WriteString(`Reply with JSON only: {"overall_score":0.85,"completeness":1.0,"consistency":0.9,"issues":[],"suggestions":[]}`)

	text, err := t.Client.Complete(ctx, b.String())
	if err != nil {
		return models.Result{}, false
	}
	m, err := jsonx.Extract(text)
	if err != nil {
		return models.Result{}, false
	}
	m["status"] = string(models.ResultSuccess)
	res := models.ResultFromMap(m)
	score, ok := res.Float("overall_score")
	if !ok || score < 0 || score > 1 {
		return models.Result{}, false
	}
	res.Message = fmt.Sprintf("overall quality %.2f", score)
	return res, true
}

// VideoFallback wraps the video capability: a success that names no
// video_path gets the newest video found in the project.
type VideoFallback struct {
	Capability
	Store *projects.Store
}

func (v *VideoFallback) Execute(ctx context.Context, params map[string]any) (models.Result, error) {
	res, err := v.Capability.Execute(ctx, params)
	if err != nil || !res.OK() || res.String("video_path") != "" {
		return res, err
	}
	if p, lerr := v.Store.LatestVideo(paramString(params, "project_name")); lerr == nil {
		if res.Data == nil {
			res.Data = map[string]any{}
		}
		res.Data["video_path"] = p
	}
	return res, nil
}
