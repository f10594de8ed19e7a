package agents

import (
	"fmt"

	"github.com/example/reelforge/internal/models"
)

// DefaultAction is the first missing pipeline step, or a quality
// evaluation once all four are complete.
func DefaultAction(steps []models.Step) models.Action {
	t := models.NextTool(steps)
	reason := "continue the pipeline in order"
	if t == models.ToolEvaluate {
		reason = "evaluate final quality"
	}
	return models.Action{Tool: t, Parameters: map[string]any{}, Rationale: reason}
}

// Guard returns the action to execute for proposal. A proposal is replaced
// by DefaultAction, with violation saying why, when it
//   - repeats inspection right after an inspection,
//   - runs a step before its predecessor completed,
//   - reruns a completed step other than images (video may follow a
//     newer image run),
//   - evaluates before all four steps completed.
func Guard(proposal models.Action, m *Memory) (action models.Action, violation string) {
	fallback := func(format string, args ...any) (models.Action, string) {
		return DefaultAction(m.StepsCompleted), fmt.Sprintf(format, args...)
	}
	switch proposal.Tool {
	case models.ToolInspect:
		if last, ok := m.lastTool(); ok && last == models.ToolInspect {
			return fallback("inspection repeated back to back")
		}
		return proposal, ""
	case models.ToolEvaluate:
		if !m.allSteps() {
			return fallback("evaluation proposed with %d/%d steps complete", len(m.StepsCompleted), len(models.Pipeline))
		}
		return proposal, ""
	}
	step, ok := proposal.Tool.Step()
	if !ok {
		return proposal, ""
	}
	if pred, ok := step.Predecessor(); ok && !m.Has(pred) {
		return fallback("%s proposed before %s completed", step, pred)
	}
	if m.Has(step) && !rerunAllowed(step, m) {
		return fallback("%s already completed", step)
	}
	return proposal, ""
}

func rerunAllowed(s models.Step, m *Memory) bool {
	switch s {
	case models.StepImages:
		return true
	case models.StepVideo:
		return m.lastRun(models.ToolImages) > m.lastRun(models.ToolVideo)
	}
	return false
}
