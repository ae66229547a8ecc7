package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/mark3labs/mcp-go/mcp"
)

// Handler is one tool: its descriptor plus the function that runs it.
type Handler interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Outcome classifies a finished invocation for observers.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeUnknown Outcome = "unknown"
)

// Observer is notified after every invocation.
type Observer interface {
	ObserveToolCall(tool string, outcome Outcome, elapsed time.Duration)
}

// Registry holds the tool set and dispatches invocations. It is built once
// and never modified afterwards.
type Registry struct {
	handlers map[string]Handler
	defs     map[string]mcp.Tool
	order    []string

	timeout  time.Duration
	strict   bool
	observer Observer
	log      logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds every invocation. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithStrictArgs enables presence and type checks against each tool's
// input schema before its handler runs.
func WithStrictArgs(strict bool) Option {
	return func(r *Registry) { r.strict = strict }
}

// WithObserver sets the invocation observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry registers handlers in the given order. Tool names must be
// non-empty and unique.
func NewRegistry(handlers []Handler, opts ...Option) (*Registry, error) {
	r := &Registry{
		handlers: make(map[string]Handler, len(handlers)),
		defs:     make(map[string]mcp.Tool, len(handlers)),
		log:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, h := range handlers {
		def := h.Definition()
		if def.Name == "" {
			return nil, errors.New("tool definition has no name")
		}
		if _, dup := r.handlers[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		r.handlers[def.Name] = h
		r.defs[def.Name] = cloneTool(def)
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// List returns copies of the tool descriptors in registration order.
// Mutating the result does not affect the registry.
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, cloneTool(r.defs[name]))
	}
	return out
}

// cloneTool copies the input schema's maps and slices.
func cloneTool(t mcp.Tool) mcp.Tool {
	t.InputSchema.Properties = cloneMap(t.InputSchema.Properties)
	t.InputSchema.Defs = cloneMap(t.InputSchema.Defs)
	t.InputSchema.Required = slices.Clone(t.InputSchema.Required)
	t.RawInputSchema = slices.Clone(t.RawInputSchema)
	return t
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	default:
		return v
	}
}

// Has reports whether name is a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Invoke runs the named tool with args and always returns an envelope.
// Unknown tools, handler errors, panics and timeouts all come back as
// results with IsError set.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	start := time.Now()
	log := r.log.With(logging.String("tool", name))

	h, ok := r.handlers[name]
	if !ok {
		log.Warn("unknown tool requested")
		r.observe(name, OutcomeUnknown, start)
		return mcp.NewToolResultError("unknown tool: " + name)
	}

	if args == nil {
		args = map[string]any{}
	}

	if r.strict {
		if err := ValidateArgs(r.defs[name], args); err != nil {
			log.Debug("arguments rejected", logging.String("reason", err.Error()))
			r.observe(name, OutcomeError, start)
			return executionError(name, err)
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := r.run(ctx, h, req)
	if err != nil {
		log.Error("tool failed", err, logging.Duration("elapsed", time.Since(start)))
		r.observe(name, OutcomeError, start)
		return executionError(name, err)
	}

	outcome := OutcomeOK
	if result.IsError {
		outcome = OutcomeError
	}
	log.Debug("tool finished", logging.Bool("is_error", result.IsError), logging.Duration("elapsed", time.Since(start)))
	r.observe(name, outcome, start)
	return result
}

// handlerResult carries a handler's return values across goroutines.
type handlerResult struct {
	res *mcp.CallToolResult
	err error
}

// run executes the handler in its own goroutine so a panic is recovered and
// an expired context returns control even if the handler ignores it.
func (r *Registry) run(ctx context.Context, h Handler, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- handlerResult{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		res, err := h.Handle(ctx, req)
		if err == nil && res == nil {
			err = errors.New("handler returned no result")
		}
		done <- handlerResult{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) observe(name string, outcome Outcome, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveToolCall(name, outcome, time.Since(start))
	}
}

func executionError(name string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Error executing tool %s: %v", name, err))
}
