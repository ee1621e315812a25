package tools

import (
	"context"
	"encoding/json"

	"turncore/internal/llm"
)

// DispatchEvent captures a single tool dispatch invocation and its result,
// used to feed orchestrator-level telemetry without coupling the registry
// itself to any particular observability sink.
type DispatchEvent struct {
	Name    string
	Args    json.RawMessage
	Payload []byte
	Err     error
}

type recordingRegistry struct {
	base Registry
	on   func(DispatchEvent)
}

// NewRecordingRegistry wraps base and invokes on for every Dispatch call,
// after the underlying dispatch has completed.
func NewRecordingRegistry(base Registry, on func(DispatchEvent)) Registry {
	if base == nil {
		base = NewRegistry()
	}
	return &recordingRegistry{base: base, on: on}
}

func (r *recordingRegistry) Register(t Tool, replace bool) error { return r.base.Register(t, replace) }
func (r *recordingRegistry) Lookup(name string) (Tool, bool)      { return r.base.Lookup(name) }
func (r *recordingRegistry) Descriptors() []Descriptor            { return r.base.Descriptors() }
func (r *recordingRegistry) Schemas() []llm.ToolSchema            { return r.base.Schemas() }

func (r *recordingRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	payload, err := r.base.Dispatch(ctx, name, raw)
	if r.on != nil {
		r.on(DispatchEvent{Name: name, Args: raw, Payload: payload, Err: err})
	}
	return payload, err
}
