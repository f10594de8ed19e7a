package agents

import (
	"time"

	"github.com/example/reelforge/internal/models"
)

type EventKind string

const (
	EventToolStarted  EventKind = "tool_started"
	EventToolFinished EventKind = "tool_finished"
	EventState        EventKind = "state"
	EventThought      EventKind = "thought"
)

// State is the externally visible slice of agent memory.
type State struct {
	StepsCompleted []models.Step
	CurrentStep    string
	QualityScore   *float64
	Attempts       int
	ArtifactPath   string
	Progress       int
}

// Event is a progress notification from a controller run. Which fields are
// set depends on Kind.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Tool     models.Tool
	Result   models.Result
	State    State
	Category string
	Message  string
}

// Observer receives progress events. A returned error aborts the run.
type Observer interface {
	Observe(Event) error
}

type ObserverFunc func(Event) error

func (f ObserverFunc) Observe(ev Event) error { return f(ev) }
