package orchestrator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
)

type EventType string

const (
	EventTaskUpdate   EventType = "task_update"
	EventToolUpdate   EventType = "tool_update"
	EventAgentMessage EventType = "agent_message"
	EventPing         EventType = "ping"
)

// Event is the wire payload pushed to subscribers. Which fields are set
// depends on Type.
type Event struct {
	Type      EventType         `json:"type"`
	Task      *models.Task      `json:"task,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	Tool      models.Tool       `json:"tool,omitempty"`
	Info      *models.ToolState `json:"info,omitempty"`
	Role      string            `json:"role,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

func TaskUpdate(t *models.Task) Event { return Event{Type: EventTaskUpdate, Task: t} }

func ToolUpdate(taskID string, tool models.Tool, st models.ToolState) Event {
	return Event{Type: EventToolUpdate, TaskID: taskID, Tool: tool, Info: &st}
}

func AgentMessage(taskID, role, message string, ts time.Time) Event {
	return Event{Type: EventAgentMessage, TaskID: taskID, Role: role, Message: message, Timestamp: &ts}
}

func Ping(ts time.Time) Event { return Event{Type: EventPing, Timestamp: &ts} }

type subscriber chan []byte

// Hub fans events out to every subscriber. Delivery is best effort: a
// subscriber whose inbox is full is closed and dropped.
type Hub struct {
	mu     sync.Mutex
	subs   map[subscriber]struct{}
	buffer int

	metrics *Metrics
	log     logging.Logger
}

const DefaultSubscriberBuffer = 256

func NewHub(buffer int, metrics *Metrics, log logging.Logger) *Hub {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:    map[subscriber]struct{}{},
		buffer:  buffer,
		metrics: metrics,
		log:     logging.OrNop(log).With("component", "hub"),
	}
}

// Subscribe returns a private inbox, already holding a ping, and a func
// that detaches it. The inbox is closed when the subscriber is dropped or
// unsubscribed.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(subscriber, h.buffer)
	if b, err := json.Marshal(Ping(time.Now())); err == nil {
		ch <- b
	}
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.metrics.SetSubscribers(n)

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		n := len(h.subs)
		h.mu.Unlock()
		h.metrics.SetSubscribers(n)
	}
	return ch, unsubscribe
}

// Publish offers ev to every inbox without blocking.
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", "type", ev.Type, "error", err)
		return
	}
	h.mu.Lock()
	dropped := 0
	for ch := range h.subs {
		select {
		case ch <- b:
		default:
			delete(h.subs, ch)
			close(ch)
			dropped++
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.IncEvent(ev.Type)
	if dropped > 0 {
		h.log.Warn("dropped slow subscribers", "count", dropped)
		h.metrics.AddDroppedSubscribers(dropped)
		h.metrics.SetSubscribers(n)
	}
}

// Subscribers reports how many inboxes are attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
