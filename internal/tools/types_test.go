package tools

import (
	"context"
	"encoding/json"
	"testing"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) JSONSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}}
}
func (echoTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	return string(raw), nil
}

func TestRegister_RejectsDuplicateWithoutReplace(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool{}, false); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	if err := r.Register(echoTool{}, false); err == nil {
		t.Fatalf("expected error re-registering %q without replace", "echo")
	}
	if err := r.Register(echoTool{}, true); err != nil {
		t.Fatalf("expected replace=true to succeed: %v", err)
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool{}, false)
	descs := r.Descriptors()
	if len(descs) != 1 || descs[0].Name != "echo" {
		t.Fatalf("expected echo descriptor, got %+v", descs)
	}
	schema := descs[0].Schema
	want := echoTool{}.JSONSchema()
	wb, _ := json.Marshal(want)
	gb, _ := json.Marshal(schema)
	if string(wb) != string(gb) {
		t.Fatalf("descriptor schema mismatch: got %s want %s", gb, wb)
	}
}

func TestDispatch_UnknownToolRendersNotice(t *testing.T) {
	r := NewRegistry()
	out, err := r.Dispatch(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) == "" {
		t.Fatalf("expected a rendered notice for an unknown tool")
	}
}

func TestDispatch_RoutesToRegisteredTool(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool{}, false)
	out, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"hi":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"hi":1}` {
		t.Fatalf("expected echoed payload, got %s", out)
	}
}
