package tools

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
)

// Capability is one externally implemented pipeline step. Implementations
// report failures either as an error envelope or a returned error; the
// registry folds both into the envelope.
type Capability interface {
	Name() models.Tool
	Execute(ctx context.Context, params map[string]any) (models.Result, error)
}

// Func adapts a plain function to Capability.
type Func struct {
	Tool models.Tool
	Fn   func(ctx context.Context, params map[string]any) (models.Result, error)
}

func (f Func) Name() models.Tool { return f.Tool }

func (f Func) Execute(ctx context.Context, params map[string]any) (models.Result, error) {
	return f.Fn(ctx, params)
}

// Registry maps the closed tool enum to capabilities.
type Registry struct {
	tools map[models.Tool]Capability
	log   logging.Logger
}

func NewRegistry(log logging.Logger) *Registry {
	return &Registry{tools: map[models.Tool]Capability{}, log: logging.OrNop(log).With("component", "tools")}
}

// Register adds or replaces c. Names outside the tool enum are rejected.
func (r *Registry) Register(c Capability) error {
	if !c.Name().Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownTool, c.Name())
	}
	r.tools[c.Name()] = c
	return nil
}

func (r *Registry) Get(t models.Tool) (Capability, bool) {
	c, ok := r.tools[t]
	return c, ok
}

// Names returns the registered tools in dispatch order.
func (r *Registry) Names() []models.Tool {
	var out []models.Tool
	for _, t := range models.Tools {
		if _, ok := r.tools[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Execute runs the action's capability and always returns an envelope.
// Unknown tools, returned errors and panics all become error envelopes.
func (r *Registry) Execute(ctx context.Context, a models.Action) (res models.Result) {
	c, ok := r.tools[a.Tool]
	if !ok {
		return models.Failure("%v: %s", models.ErrUnknownTool, a.Tool)
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("capability panic", "tool", a.Tool, "panic", p, "stack", string(debug.Stack()))
			res = models.Failure("%s panicked: %v", a.Tool, p)
		}
	}()
	params := a.Parameters
	if params == nil {
		params = map[string]any{}
	}
	out, err := c.Execute(ctx, params)
	if err != nil {
		r.log.Error("capability failed", "tool", a.Tool, "error", err)
		return models.Failure("%s: %v", a.Tool, err)
	}
	if out.Status == "" {
		out.Status = models.ResultSuccess
	}
	if !out.OK() {
		r.log.Warn("capability reported error", "tool", a.Tool, "message", out.Message)
	}
	return out
}

func paramString(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
