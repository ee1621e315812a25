package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRecordingRegistry_InvokesCallbackAfterDispatch(t *testing.T) {
	base := NewRegistry()
	_ = base.Register(echoTool{}, false)

	var events []DispatchEvent
	r := NewRecordingRegistry(base, func(ev DispatchEvent) {
		events = append(events, ev)
	})

	out, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"a":1}` {
		t.Fatalf("expected echoed payload, got %s", out)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one recorded event, got %d", len(events))
	}
	if events[0].Name != "echo" || string(events[0].Payload) != `{"a":1}` || events[0].Err != nil {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestRecordingRegistry_DelegatesRegisterAndSchemas(t *testing.T) {
	r := NewRecordingRegistry(nil, nil)
	if err := r.Register(echoTool{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Schemas()) != 1 {
		t.Fatalf("expected one schema, got %d", len(r.Schemas()))
	}
	if _, ok := r.Lookup("echo"); !ok {
		t.Fatalf("expected echo to be registered on the wrapped base")
	}
}

func TestRecordingRegistry_NilCallbackIsSafe(t *testing.T) {
	base := NewRegistry()
	_ = base.Register(echoTool{}, false)
	r := NewRecordingRegistry(base, nil)
	if _, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
