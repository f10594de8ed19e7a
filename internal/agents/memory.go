package agents

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/reelforge/internal/models"
)

// ErrMemoryCorrupt signals a bookkeeping bug in the loop itself. It is
// never caused by a capability or decision failure.
var ErrMemoryCorrupt = errors.New("agent memory corrupt")

type HistoryEntry struct {
	Action    models.Action `json:"action"`
	Result    models.Result `json:"result"`
	Timestamp time.Time     `json:"timestamp"`
}

// Memory is the working state of one controller run. It is dropped when
// the run returns.
type Memory struct {
	Goal           string
	QualityTarget  float64
	StepsCompleted []models.Step
	CurrentStep    string
	QualityScore   float64
	Evaluated      bool
	Attempts       int
	MaxAttempts    int
	Issues         []string
	ArtifactPath   string
	History        []HistoryEntry

	cursor       int
	historyLimit int
	// seq numbers applied actions; lastOK holds the seq of each tool's
	// latest success and outlives History trimming.
	seq    int
	lastOK map[models.Tool]int
}

func newMemory(req Request, historyLimit int) *Memory {
	return &Memory{
		Goal:          fmt.Sprintf("produce a video with quality above %.2f", req.QualityTarget),
		QualityTarget: req.QualityTarget,
		MaxAttempts:   req.MaxAttempts,
		CurrentStep:   "initializing",
		historyLimit:  historyLimit,
	}
}

func (m *Memory) Has(s models.Step) bool {
	for _, x := range m.StepsCompleted {
		if x == s {
			return true
		}
	}
	return false
}

func (m *Memory) allSteps() bool { return len(m.StepsCompleted) == len(models.Pipeline) }

// Finished reports whether every step is done and either the quality
// target is met or the attempt ceiling reached.
func (m *Memory) Finished() bool {
	return m.allSteps() && (m.targetMet() || m.Attempts >= m.MaxAttempts)
}

func (m *Memory) targetMet() bool { return m.Evaluated && m.QualityScore >= m.QualityTarget }

func (m *Memory) lastTool() (models.Tool, bool) {
	if len(m.History) == 0 {
		return "", false
	}
	return m.History[len(m.History)-1].Action.Tool, true
}

// lastRun orders the latest successful runs of tools; 0 means never.
func (m *Memory) lastRun(t models.Tool) int { return m.lastOK[t] }

// addStep appends s once. Adding a step whose predecessor is missing
// means the guardrail was bypassed.
func (m *Memory) addStep(s models.Step) error {
	if m.Has(s) {
		return nil
	}
	if pred, ok := s.Predecessor(); ok && !m.Has(pred) {
		return fmt.Errorf("%w: %s completed before %s", ErrMemoryCorrupt, s, pred)
	}
	m.StepsCompleted = append(m.StepsCompleted, s)
	return nil
}

// reconcile replaces the completed steps with what durable state reports,
// keeping only the in-order prefix.
func (m *Memory) reconcile(reported []string) {
	have := map[models.Step]bool{}
	for _, r := range reported {
		if s, ok := models.ParseStep(r); ok {
			have[s] = true
		}
	}
	m.StepsCompleted = m.StepsCompleted[:0]
	for _, s := range models.Pipeline {
		if !have[s] {
			break
		}
		m.StepsCompleted = append(m.StepsCompleted, s)
	}
}

// apply folds one executed action into memory.
func (m *Memory) apply(a models.Action, res models.Result, now time.Time) error {
	m.History = append(m.History, HistoryEntry{Action: a, Result: res, Timestamp: now})
	if m.historyLimit > 0 && len(m.History) > m.historyLimit {
		m.History = append([]HistoryEntry(nil), m.History[len(m.History)-m.historyLimit:]...)
	}
	m.seq++
	if res.OK() {
		if m.lastOK == nil {
			m.lastOK = map[models.Tool]int{}
		}
		m.lastOK[a.Tool] = m.seq
	}

	imagesBefore := m.Has(models.StepImages)
	step, isStep := a.Tool.Step()
	switch {
	case a.Tool == models.ToolInspect:
		if res.OK() {
			m.reconcile(res.Strings("steps_completed"))
			if cs := res.String("current_step"); cs != "" {
				m.CurrentStep = cs
			}
			m.Issues = res.Strings("issues")
			if v := res.String("video_path"); v != "" {
				m.ArtifactPath = v
			}
		}
	case isStep:
		if res.OK() {
			if err := m.addStep(step); err != nil {
				return err
			}
			m.CurrentStep = string(step)
		}
	case a.Tool == models.ToolEvaluate:
		if res.OK() {
			score, ok := res.Float("overall_score")
			if !ok {
				score, _ = res.Float("quality")
			}
			m.QualityScore = score
			m.Evaluated = true
			m.Issues = res.Strings("issues")
		}
	}
	if a.Tool == models.ToolVideo && res.OK() {
		if v := res.String("video_path"); v != "" {
			m.ArtifactPath = v
		}
	}
	if a.Tool == models.ToolImages && imagesBefore {
		m.Attempts++
	}
	return m.check()
}

// check verifies the ordering invariant of the completed steps.
func (m *Memory) check() error {
	for i, s := range m.StepsCompleted {
		if i >= len(models.Pipeline) || models.Pipeline[i] != s {
			return fmt.Errorf("%w: steps out of order %v", ErrMemoryCorrupt, m.StepsCompleted)
		}
	}
	return nil
}

// progress maps memory to a task percentage; a quality pass over a
// complete pipeline takes it to 100.
func (m *Memory) progress() int {
	if m.allSteps() && m.Evaluated {
		return 100
	}
	return models.StepProgress(len(m.StepsCompleted))
}
