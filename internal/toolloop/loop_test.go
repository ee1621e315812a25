package toolloop

import (
	"context"
	"encoding/json"
	"testing"

	"turncore/internal/llm"
	"turncore/internal/tools"
)

type scriptedStepper struct {
	turns []llm.Message
	i     int
}

func (s *scriptedStepper) Step(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema, model string) (llm.Message, llm.ResponseMetrics, error) {
	if s.i >= len(s.turns) {
		return llm.Message{Role: "assistant", Content: "done"}, llm.ResponseMetrics{}, nil
	}
	turn := s.turns[s.i]
	s.i++
	return turn, llm.ResponseMetrics{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}, nil
}

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Description() string          { return "echoes its input" }
func (echoTool) JSONSchema() map[string]any   { return map[string]any{"type": "object"} }
func (echoTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	return "echoed:" + string(raw), nil
}

func TestRun_NoToolCallsReturnsImmediately(t *testing.T) {
	stepper := &scriptedStepper{turns: []llm.Message{{Role: "assistant", Content: "hi there"}}}
	resp := Run(context.Background(), stepper, nil, []llm.Message{{Role: "user", Content: "hello"}}, nil, "m", 3)
	if resp.Text != "hi there" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}

func TestRun_DispatchesToolCallAndContinues(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(echoTool{}, false); err != nil {
		t.Fatalf("register: %v", err)
	}

	stepper := &scriptedStepper{turns: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{{Name: "echo", Args: json.RawMessage(`{"a":1}`), ID: "call-1"}}},
		{Role: "assistant", Content: "final answer"},
	}}

	resp := Run(context.Background(), stepper, registry, []llm.Message{{Role: "user", Content: "go"}}, nil, "m", 3)
	if resp.Text != "final answer" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}

func TestRun_ExhaustsStepsReturnsFallback(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(echoTool{}, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	call := llm.ToolCall{Name: "echo", Args: json.RawMessage(`{}`), ID: "call-1"}
	stepper := &scriptedStepper{turns: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{call}},
		{Role: "assistant", ToolCalls: []llm.ToolCall{call}},
		{Role: "assistant", ToolCalls: []llm.ToolCall{call}},
	}}

	resp := Run(context.Background(), stepper, registry, []llm.Message{{Role: "user", Content: "go"}}, nil, "m", 3)
	if resp.Text != FallbackText {
		t.Fatalf("expected fallback text, got %q", resp.Text)
	}
}

func TestRun_UnknownToolRendersNoticeInsteadOfErroring(t *testing.T) {
	registry := tools.NewRegistry()
	stepper := &scriptedStepper{turns: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{{Name: "missing", Args: json.RawMessage(`{}`), ID: "call-1"}}},
		{Role: "assistant", Content: "ok"},
	}}

	resp := Run(context.Background(), stepper, registry, []llm.Message{{Role: "user", Content: "go"}}, nil, "m", 3)
	if resp.Text != "ok" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}
