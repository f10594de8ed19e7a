package orchestrator

import (
	"sync"
	"time"

	"github.com/example/reelforge/internal/models"
)

// MessageLog holds each task's append-only user messages. Readers keep
// their own cursor; nothing is ever removed from a live task's list.
type MessageLog struct {
	mu   sync.RWMutex
	msgs map[string][]models.UserMessage
}

func NewMessageLog() *MessageLog { return &MessageLog{msgs: map[string][]models.UserMessage{}} }

func (l *MessageLog) Append(taskID, message string, ts time.Time) models.UserMessage {
	m := models.UserMessage{Message: message, Timestamp: ts}
	l.mu.Lock()
	l.msgs[taskID] = append(l.msgs[taskID], m)
	l.mu.Unlock()
	return m
}

// Since returns a copy of the messages at index from onwards.
func (l *MessageLog) Since(taskID string, from int) []models.UserMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	all := l.msgs[taskID]
	if from < 0 {
		from = 0
	}
	if from >= len(all) {
		return nil
	}
	return append([]models.UserMessage(nil), all[from:]...)
}

func (l *MessageLog) All(taskID string) []models.UserMessage { return l.Since(taskID, 0) }

// Forget drops a task's messages once the task leaves history.
func (l *MessageLog) Forget(taskID string) {
	l.mu.Lock()
	delete(l.msgs, taskID)
	l.mu.Unlock()
}
