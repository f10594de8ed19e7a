package models

import (
	"errors"
	"fmt"
	"strings"
)

// Tool is the closed set of capabilities the pipeline can dispatch to.
type Tool string

const (
	ToolInspect  Tool = "inspect_project"
	ToolAudio    Tool = "generate_audio"
	ToolPrompts  Tool = "generate_prompts"
	ToolImages   Tool = "generate_images"
	ToolVideo    Tool = "compose_video"
	ToolEvaluate Tool = "evaluate_quality"
)

// Tools lists every capability in dispatch order.
var Tools = []Tool{ToolInspect, ToolAudio, ToolPrompts, ToolImages, ToolVideo, ToolEvaluate}

var ErrUnknownTool = errors.New("unknown tool")

// ParseTool accepts a tool name or the bare step name ("images").
func ParseTool(s string) (Tool, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Tools {
		if string(t) == name {
			return t, nil
		}
	}
	if st, ok := ParseStep(name); ok {
		return st.Tool(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// Valid reports whether t is one of Tools.
func (t Tool) Valid() bool {
	for _, x := range Tools {
		if x == t {
			return true
		}
	}
	return false
}

// Step returns the pipeline step produced by t, if any.
func (t Tool) Step() (Step, bool) {
	for _, s := range Pipeline {
		if s.Tool() == t {
			return s, true
		}
	}
	return "", false
}

type Step string

const (
	StepAudio   Step = "audio"
	StepPrompts Step = "prompts"
	StepImages  Step = "images"
	StepVideo   Step = "video"
)

// Pipeline is the fixed dependency order of the four stages.
var Pipeline = []Step{StepAudio, StepPrompts, StepImages, StepVideo}

func (s Step) Tool() Tool {
	switch s {
	case StepAudio:
		return ToolAudio
	case StepPrompts:
		return ToolPrompts
	case StepImages:
		return ToolImages
	case StepVideo:
		return ToolVideo
	}
	return ""
}

// Predecessor returns the step that must complete before s.
func (s Step) Predecessor() (Step, bool) {
	for i, p := range Pipeline {
		if p == s && i > 0 {
			return Pipeline[i-1], true
		}
	}
	return "", false
}

// NextTool returns the generate tool for the first step missing from done,
// or ToolEvaluate once all four are present.
func NextTool(done []Step) Tool {
	have := make(map[Step]bool, len(done))
	for _, s := range done {
		have[s] = true
	}
	for _, s := range Pipeline {
		if !have[s] {
			return s.Tool()
		}
	}
	return ToolEvaluate
}

// ParseStep accepts "images", "generate_images" and the inspector's
// legacy "generate_video".
func ParseStep(s string) (Step, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, st := range Pipeline {
		if string(st) == name || string(st.Tool()) == name {
			return st, true
		}
	}
	if name == "generate_video" {
		return StepVideo, true
	}
	return "", false
}

// Action is a proposed or executed tool invocation.
type Action struct {
	Tool       Tool           `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Rationale  string         `json:"reason,omitempty"`
}
