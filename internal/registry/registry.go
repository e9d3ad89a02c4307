// Package registry is the process-wide catalog of invocable tools.
//
// Tools register during startup; the lifecycle manager freezes the registry
// before the router begins accepting, after which the content is immutable
// and the read path needs no coordination beyond the pre-freeze mutex.
//
// Invoke is the shared invocation core for both transport adapters, so
// unknown-tool and handler-failure outcomes translate identically on each.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
	"github.com/wagiedev/analytics-mcp/internal/telemetry"
)

// Handler executes one tool invocation with caller-supplied structured
// arguments and returns a structured result.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Descriptor describes one registered tool. Immutable after registration.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
}

// Registry maps tool names to descriptors.
type Registry struct {
	log *slog.Logger
	obs *telemetry.Observer

	mu     sync.RWMutex
	frozen bool
	tools  map[string]Descriptor
	order  []string
}

// New creates an empty, unfrozen Registry. The observer may be nil.
func New(log *slog.Logger, obs *telemetry.Observer) *Registry {
	return &Registry{
		log:   log.With("component", "registry"),
		obs:   obs,
		tools: make(map[string]Descriptor, 8),
	}
}

// Register adds a tool descriptor. It fails after Freeze, on duplicate names,
// and on descriptors missing a name or handler.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return srverrors.ErrRegistryFrozen
	}
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Handler == nil {
		return &srverrors.ToolError{Tool: d.Name, Err: fmt.Errorf("handler is required")}
	}
	if _, exists := r.tools[d.Name]; exists {
		return &srverrors.ToolError{Tool: d.Name, Err: srverrors.ErrToolExists}
	}

	r.tools[d.Name] = d
	r.order = append(r.order, d.Name)
	r.log.Debug("tool registered", "tool", d.Name)

	return nil
}

// Freeze makes the registry immutable. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.frozen
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]

	return d, ok
}

// List returns the descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}

	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// Invoke looks up and executes a tool. An unknown name yields a ToolError
// wrapping ErrToolNotFound; a handler error or panic yields a ToolError
// wrapping the cause. Invoke never panics and never crashes the connection.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	d, ok := r.Get(name)
	if !ok {
		r.obs.EndInvocation(ctx, nil, name, "not_found", srverrors.ErrToolNotFound)
		return nil, &srverrors.ToolError{Tool: name, Err: srverrors.ErrToolNotFound}
	}

	ctx, span := r.obs.StartInvocation(ctx, name)
	result, err := r.call(ctx, d, args)
	if err != nil {
		r.obs.EndInvocation(ctx, span, name, "error", err)
		r.log.Warn("tool invocation failed", "tool", name, "error", err)
		return nil, err
	}
	r.obs.EndInvocation(ctx, span, name, "ok", nil)

	return result, nil
}

// call runs the handler with panic containment. A panicking handler is a tool
// failure, not a process failure.
func (r *Registry) call(ctx context.Context, d Descriptor, args map[string]any) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &srverrors.ToolError{Tool: d.Name, Err: fmt.Errorf("handler panic: %v", rec)}
		}
	}()

	result, err = d.Handler(ctx, args)
	if err != nil {
		return nil, &srverrors.ToolError{Tool: d.Name, Err: err}
	}

	return result, nil
}
