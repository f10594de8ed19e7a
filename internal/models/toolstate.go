package models

import (
	"errors"
	"fmt"
	"time"
)

type ToolStatus string

const (
	ToolIdle    ToolStatus = "idle"
	ToolRunning ToolStatus = "running"
	ToolDone    ToolStatus = "done"
	ToolError   ToolStatus = "error"
)

var ErrInvalidToolTransition = errors.New("invalid tool status transition")

type ToolState struct {
	Status     ToolStatus `json:"status"`
	Retries    int        `json:"retries"`
	LastUpdate time.Time  `json:"last_update"`
}

// ToolStatusTable is the per-capability status projection of a task.
type ToolStatusTable map[Tool]ToolState

func NewToolStatusTable() ToolStatusTable {
	t := make(ToolStatusTable, len(Tools))
	for _, tool := range Tools {
		t[tool] = ToolState{Status: ToolIdle}
	}
	return t
}

// Transition applies idle|done -> running, running -> done|error and
// error -> running. Only the last one counts as a retry.
func (t ToolStatusTable) Transition(tool Tool, to ToolStatus, now time.Time) (ToolState, error) {
	cur, ok := t[tool]
	if !ok {
		cur = ToolState{Status: ToolIdle}
	}
	switch {
	case to == ToolRunning && (cur.Status == ToolIdle || cur.Status == ToolDone):
	case to == ToolRunning && cur.Status == ToolError:
		cur.Retries++
	case cur.Status == ToolRunning && (to == ToolDone || to == ToolError):
	default:
		return cur, fmt.Errorf("%w: %s %s -> %s", ErrInvalidToolTransition, tool, cur.Status, to)
	}
	cur.Status = to
	cur.LastUpdate = now
	t[tool] = cur
	return cur, nil
}

// FailRunning flips every running tool to error and returns the tools touched.
func (t ToolStatusTable) FailRunning(now time.Time) []Tool {
	var out []Tool
	for _, tool := range Tools {
		if st, ok := t[tool]; ok && st.Status == ToolRunning {
			st.Status = ToolError
			st.LastUpdate = now
			t[tool] = st
			out = append(out, tool)
		}
	}
	return out
}

func (t ToolStatusTable) Done(tool Tool) bool { return t[tool].Status == ToolDone }

func (t ToolStatusTable) Clone() ToolStatusTable {
	if t == nil {
		return nil
	}
	c := make(ToolStatusTable, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}
