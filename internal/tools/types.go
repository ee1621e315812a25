// Package tools implements the Tool Registry (§4.1): a process-wide,
// read-mostly catalog of named callables with JSON parameter schemas, plus
// the built-in search/weather/geo tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"turncore/internal/llm"
)

// Tool is an executable capability the agentic loop can call. Call never
// returns an error for ordinary failure modes (network, timeout, non-2xx,
// quota exhaustion): those are rendered into the returned string per §4.1's
// failure semantics ("every tool returns a string... tools never throw
// across the registry boundary"). The error return is reserved for
// programmer errors such as malformed call arguments from the model.
type Tool interface {
	Name() string
	Description() string
	JSONSchema() map[string]any
	Call(ctx context.Context, raw json.RawMessage) (string, error)
}

// Descriptor is the read-only view of a registered tool (§3 ToolDescriptor).
type Descriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Registry holds the process-wide tool catalog. Implementations must be
// safe for concurrent Dispatch once construction/registration has finished
// (§5: "read-mostly after startup... require no locking" in the steady
// state; this implementation still guards registration with a mutex so
// tests and dynamic setups aren't required to order calls strictly).
type Registry interface {
	// Register adds t under its own name. Re-registration under an existing
	// name is rejected unless replace is true (§4.1 contract).
	Register(t Tool, replace bool) error
	Lookup(name string) (Tool, bool)
	Descriptors() []Descriptor
	Schemas() []llm.ToolSchema
	Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error)
}

type registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
	order  []string
}

// NewRegistry returns an empty, ready-to-populate Registry.
func NewRegistry() Registry {
	return &registry{byName: make(map[string]Tool)}
}

func (r *registry) Register(t Tool, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.byName[name]; exists && !replace {
		return fmt.Errorf("tool %q already registered", name)
	}
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = t
	return nil
}

func (r *registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		out = append(out, Descriptor{Name: name, Description: t.Description(), Schema: t.JSONSchema()})
	}
	return out
}

func (r *registry) Schemas() []llm.ToolSchema {
	descs := r.Descriptors()
	out := make([]llm.ToolSchema, 0, len(descs))
	for _, d := range descs {
		out = append(out, llm.ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Schema})
	}
	return out
}

func (r *registry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	t, ok := r.Lookup(name)
	if !ok {
		// Invariant-class error (§7): rendered as a short notice, not raised,
		// so the agentic loop can continue and the model can react.
		return []byte(fmt.Sprintf("unknown tool requested: %q", name)), nil
	}
	out, err := t.Call(ctx, raw)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
