package orchestrator

import (
	"context"
	"sync"
)

// PauseGate is the suspension point the worker passes before each step.
// A paused task holds an open channel; Resume closes it and releases
// anyone waiting in Checkpoint.
type PauseGate struct {
	mu     sync.Mutex
	paused map[string]chan struct{}
}

func NewPauseGate() *PauseGate { return &PauseGate{paused: map[string]chan struct{}{}} }

// Pause marks id paused and reports whether the state changed.
func (g *PauseGate) Pause(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.paused[id]; ok {
		return false
	}
	g.paused[id] = make(chan struct{})
	return true
}

// Resume clears the mark and reports whether the state changed.
func (g *PauseGate) Resume(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.paused[id]
	if !ok {
		return false
	}
	close(ch)
	delete(g.paused, id)
	return true
}

func (g *PauseGate) Paused(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.paused[id]
	return ok
}

// Checkpoint returns once id is not paused, or with ctx's error.
func (g *PauseGate) Checkpoint(ctx context.Context, id string) error {
	for {
		g.mu.Lock()
		ch, ok := g.paused[id]
		g.mu.Unlock()
		if !ok {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
