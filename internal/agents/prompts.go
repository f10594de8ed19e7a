package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/reelforge/internal/models"
)

// Observation is what the decision service sees each iteration.
type Observation struct {
	CurrentStep    string        `json:"current_step"`
	StepsCompleted []models.Step `json:"steps_completed"`
	QualityScore   *float64      `json:"quality_score"`
	QualityTarget  float64       `json:"quality_target"`
	Attempts       int           `json:"attempts"`
	MaxAttempts    int           `json:"max_attempts"`
	Issues         []string      `json:"issues"`
	LastAction     models.Tool   `json:"last_action,omitempty"`
	UserMessages   []string      `json:"user_messages,omitempty"`
}

// Thought is the free-text analysis returned by the think call.
type Thought struct {
	ProgressAnalysis   string `json:"progress_analysis"`
	NextStepSuggestion string `json:"next_step_suggestion"`
	Reasoning          string `json:"reasoning"`
}

func neutralThought(cause string) Thought {
	return Thought{
		ProgressAnalysis:   "unavailable",
		NextStepSuggestion: "continue with the next step",
		Reasoning:          "decision service unavailable: " + cause,
	}
}

type proposal struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Reason     string         `json:"reason"`
}

const (
	thinkHeader  = "You are an autonomous video generation agent. Analyse the current state."
	decideHeader = "You are an autonomous video generation agent. Choose the next action."
)

func thinkPrompt(obs Observation) string {
	state, _ := json.MarshalIndent(obs, "", "  ")
	return fmt.Sprintf(`%s

Current state:
%s

Rules:
- The workflow order is audio -> prompts -> images -> video.
- Once audio is done, go straight to prompts; do not evaluate audio.
- Do not suggest regenerating completed steps unless image quality is below target.

Reply with JSON only:
{"progress_analysis": "...", "next_step_suggestion": "...", "reasoning": "..."}`, thinkHeader, state)
}

func decidePrompt(obs Observation, th Thought) string {
	var b strings.Builder
	b.WriteString(decideHeader)
	b.WriteString("\n\nCurrent state:\n")
	fmt.Fprintf(&b, "- steps completed: %v\n", obs.StepsCompleted)
	if obs.QualityScore != nil {
		fmt.Fprintf(&b, "- quality: %.2f (target %.2f)\n", *obs.QualityScore, obs.QualityTarget)
	} else {
		fmt.Fprintf(&b, "- quality: not evaluated (target %.2f)\n", obs.QualityTarget)
	}
	fmt.Fprintf(&b, "- image attempts: %d of %d\n", obs.Attempts, obs.MaxAttempts)
	if obs.LastAction != "" {
		fmt.Fprintf(&b, "- last action: %s\n", obs.LastAction)
	}
	if th.Reasoning != "" {
		fmt.Fprintf(&b, "- analysis: %s\n", th.Reasoning)
	}
	if len(obs.UserMessages) > 0 {
		b.WriteString("\nUser messages (take them into account):\n")
		for _, m := range obs.UserMessages {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	b.WriteString(`
Tools:
- inspect_project: read project state from disk (only once, when resuming)
- generate_audio: narration audio and subtitles (first)
- generate_prompts: image prompts per scene (needs audio)
- generate_images: scene images (needs prompts; rerun to improve quality)
- compose_video: final video (needs images)
- evaluate_quality: score the output (after video)

Never skip a step and never run inspect_project twice in a row.

Reply with JSON only:
{"tool": "<tool name>", "parameters": {}, "reason": "..."}`)
	return b.String()
}
