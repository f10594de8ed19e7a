package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrQueueClosed  = errors.New("queue closed")
)

// Runner executes one task. Task is a read-only snapshot of the inputs;
// every mutation goes through the tracker.
type Runner interface {
	Run(ctx context.Context, task *models.Task, tr *Tracker) error
}

type Options struct {
	HistorySize int
	// TaskLogLimit bounds each task's log; <= 0 keeps everything.
	TaskLogLimit int
	Metrics      *Metrics
	Log          logging.Logger
	Now          func() time.Time
}

const DefaultHistorySize = 100

// Scheduler owns the FIFO queue, the running task, terminal history, the
// pause gate and user messages, and runs exactly one task at a time.
type Scheduler struct {
	mu      sync.Mutex
	queue   []*models.Task
	current *models.Task
	history *lru.Cache[string, *models.Task]
	closed  bool
	wake    chan struct{}

	runner   Runner
	hub      *Hub
	gate     *PauseGate
	messages *MessageLog
	metrics  *Metrics
	log      logging.Logger
	now      func() time.Time
	logLimit int
}

func NewScheduler(runner Runner, hub *Hub, opts Options) (*Scheduler, error) {
	size := opts.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	s := &Scheduler{
		wake:     make(chan struct{}, 1),
		runner:   runner,
		hub:      hub,
		gate:     NewPauseGate(),
		messages: NewMessageLog(),
		metrics:  opts.Metrics,
		log:      logging.OrNop(opts.Log).With("component", "scheduler"),
		now:      opts.Now,
		logLimit: opts.TaskLogLimit,
	}
	if s.now == nil {
		s.now = time.Now
	}
	h, err := lru.NewWithEvict[string, *models.Task](size, func(id string, _ *models.Task) {
		s.messages.Forget(id)
	})
	if err != nil {
		return nil, fmt.Errorf("history cache: %w", err)
	}
	s.history = h
	return s, nil
}

func (s *Scheduler) Gate() *PauseGate      { return s.gate }
func (s *Scheduler) Messages() *MessageLog { return s.messages }
func (s *Scheduler) Hub() *Hub             { return s.hub }

// Submit enqueues t and never blocks.
func (s *Scheduler) Submit(t *models.Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrQueueClosed
	}
	if t.ToolStatus == nil {
		t.ToolStatus = models.NewToolStatusTable()
	}
	s.queue = append(s.queue, t)
	depth := len(s.queue)
	snap := t.Snapshot()
	s.mu.Unlock()

	s.metrics.IncSubmitted(t.Mode)
	s.metrics.SetQueueDepth(depth)
	s.log.Info("task submitted", "task_id", t.ID, "mode", t.Mode, "project", t.ProjectName, "position", depth)
	s.publish(TaskUpdate(snap))
	s.signal()
	return nil
}

// Promote moves a waiting task to the head of the queue.
func (s *Scheduler) Promote(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	t := s.queue[i]
	copy(s.queue[1:i+1], s.queue[:i])
	s.queue[0] = t
	s.mu.Unlock()
	s.log.Info("task promoted", "task_id", id)
	return true
}

// Remove drops a waiting task. A running or unknown task is left alone.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
	depth := len(s.queue)
	s.mu.Unlock()

	s.gate.Resume(id)
	s.messages.Forget(id)
	s.metrics.SetQueueDepth(depth)
	s.log.Info("task removed", "task_id", id)
	return true
}

// Pause holds a waiting or running task at its next checkpoint.
func (s *Scheduler) Pause(id string) bool { return s.setPaused(id, true) }

func (s *Scheduler) Resume(id string) bool { return s.setPaused(id, false) }

func (s *Scheduler) setPaused(id string, paused bool) bool {
	s.mu.Lock()
	t := s.liveLocked(id)
	if t == nil {
		s.mu.Unlock()
		return false
	}
	if paused {
		s.gate.Pause(id)
	} else {
		s.gate.Resume(id)
	}
	t.Paused = paused
	snap := t.Snapshot()
	s.mu.Unlock()

	s.log.Info("task pause toggled", "task_id", id, "paused", paused)
	s.publish(TaskUpdate(snap))
	return true
}

// Post appends a user message for a waiting or running task.
func (s *Scheduler) Post(id, message string) (models.UserMessage, error) {
	now := s.now()
	s.mu.Lock()
	t := s.liveLocked(id)
	if t == nil {
		s.mu.Unlock()
		return models.UserMessage{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	m := s.messages.Append(id, message, now)
	t.AppendLog(models.LogEntry{Timestamp: now, Category: "user", Message: message}, s.logLimit)
	s.mu.Unlock()

	s.publish(AgentMessage(id, "user", message, now))
	return m, nil
}

// Run is the single worker. It returns when ctx is cancelled; the task in
// flight at that point fails.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}()
	for {
		t := s.dequeue()
		if t == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
				continue
			}
		}
		s.execute(ctx, t)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Scheduler) dequeue() *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	t := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.current = t
	s.metrics.SetQueueDepth(len(s.queue))
	return t
}

func (s *Scheduler) execute(ctx context.Context, t *models.Task) {
	log := s.log.With("task_id", t.ID, "mode", t.Mode)
	started := s.now()

	s.mu.Lock()
	err := t.Transition(models.StatusRunning, started)
	t.CurrentStep = "starting"
	input := t.Snapshot()
	s.mu.Unlock()
	if err != nil {
		log.Error("cannot start task", "error", err)
		s.finish(t, err, started)
		return
	}
	s.metrics.IncActive()
	s.publish(TaskUpdate(input))
	log.Info("task started", "project", t.ProjectName)

	err = s.runSafely(ctx, input, &Tracker{s: s, task: t})
	s.metrics.DecActive()
	s.finish(t, err, started)
}

// runSafely turns a runner panic into an error so the worker survives.
func (s *Scheduler) runSafely(ctx context.Context, t *models.Task, tr *Tracker) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("task panicked", "task_id", t.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.runner.Run(ctx, t, tr)
}

func (s *Scheduler) finish(t *models.Task, runErr error, started time.Time) {
	now := s.now()
	var toolEvents []Event

	s.mu.Lock()
	if runErr != nil {
		t.Error = shortError(runErr)
		for _, tool := range t.ToolStatus.FailRunning(now) {
			toolEvents = append(toolEvents, ToolUpdate(t.ID, tool, t.ToolStatus[tool]))
		}
		if !t.Status.Terminal() {
			if t.Status == models.StatusPending {
				_ = t.Transition(models.StatusRunning, now)
			}
			_ = t.Transition(models.StatusFailed, now)
		}
		t.AppendLog(models.LogEntry{Timestamp: now, Category: "error", Message: t.Error}, s.logLimit)
	} else {
		_ = t.Transition(models.StatusCompleted, now)
		t.SetProgress(100)
		t.CurrentStep = "completed"
	}
	if s.current == t {
		s.current = nil
	}
	s.history.Add(t.ID, t)
	snap := t.Snapshot()
	s.mu.Unlock()

	s.gate.Resume(t.ID)
	for _, ev := range toolEvents {
		s.publish(ev)
	}
	s.publish(TaskUpdate(snap))
	s.metrics.ObserveFinished(t.Mode, snap.Status, now.Sub(started))
	if runErr != nil {
		s.log.Error("task failed", "task_id", t.ID, "error", runErr)
	} else {
		s.log.Info("task completed", "task_id", t.ID, "duration", now.Sub(started))
	}
}

func shortError(err error) string {
	msg := err.Error()
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(ev Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

func (s *Scheduler) indexLocked(id string) int {
	for i, t := range s.queue {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// liveLocked finds a waiting or running task.
func (s *Scheduler) liveLocked(id string) *models.Task {
	if s.current != nil && s.current.ID == id {
		return s.current
	}
	if i := s.indexLocked(id); i >= 0 {
		return s.queue[i]
	}
	return nil
}

// update applies fn to a live task under the lock and returns a snapshot.
func (s *Scheduler) update(t *models.Task, fn func(t *models.Task) error) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(t); err != nil {
		return nil, err
	}
	return t.Snapshot(), nil
}

// Pending returns snapshots of waiting tasks in run order.
func (s *Scheduler) Pending() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Task, len(s.queue))
	for i, t := range s.queue {
		out[i] = t.Snapshot()
	}
	return out
}

func (s *Scheduler) Current() *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Snapshot()
}

// History returns finished tasks, newest first.
func (s *Scheduler) History() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.history.Keys()
	out := make([]*models.Task, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if t, ok := s.history.Peek(keys[i]); ok {
			out = append(out, t.Snapshot())
		}
	}
	return out
}

func (s *Scheduler) Get(id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.liveLocked(id); t != nil {
		return t.Snapshot(), nil
	}
	if t, ok := s.history.Peek(id); ok {
		return t.Snapshot(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// Listing groups every known task by where it sits.
type Listing struct {
	Current *models.Task   `json:"current"`
	Pending []*models.Task `json:"pending"`
	History []*models.Task `json:"history"`
}

func (s *Scheduler) List() Listing {
	return Listing{Current: s.Current(), Pending: s.Pending(), History: s.History()}
}
