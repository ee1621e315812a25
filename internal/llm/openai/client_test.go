package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"turncore/internal/config"
	"turncore/internal/llm"
	"turncore/internal/tools"
)

func TestGenerate_SingleTurnNoTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL}, srv.Client(), tools.NewRegistry(), 3)
	resp, err := c.Generate(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Metrics.TotalTokens != 4 {
		t.Fatalf("unexpected metrics: %+v", resp.Metrics)
	}
}

func TestGenerate_EmptyMessagesReturnsCannedReadyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("the model must not be called for an empty message history")
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL}, srv.Client(), tools.NewRegistry(), 3)
	resp, err := c.Generate(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != llm.ReadyToChatText {
		t.Fatalf("expected canned ready-to-chat reply, got %q", resp.Text)
	}
	if resp.Metrics.TotalTokens != 0 || len(resp.Metrics.Estimated) != 0 {
		t.Fatalf("expected metrics=none, got %+v", resp.Metrics)
	}
}

func TestGenerate_ToolCallDispatchesThenReturnsFinalText(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call-1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"x\"}"}}]}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"final answer"}}],"usage":{"prompt_tokens":2,"completion_tokens":1,"total_tokens":3}}`))
	}))
	t.Cleanup(srv.Close)

	registry := tools.NewRegistry()
	if err := registry.Register(fakeLookupTool{}, false); err != nil {
		t.Fatalf("register: %v", err)
	}

	c := New(config.ProviderConfig{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL}, srv.Client(), registry, 3)
	resp, err := c.Generate(context.Background(), []llm.Message{{Role: "user", Content: "go"}}, []llm.ToolSchema{
		{Name: "lookup", Description: "looks things up", Parameters: map[string]any{"type": "object"}},
	}, "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text != "final answer" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if calls != 2 {
		t.Fatalf("expected 2 round trips, got %d", calls)
	}
}

func TestStep_EmptyMessagesReturnsCannedReadyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("the model must not be called for an empty message history")
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL}, srv.Client(), tools.NewRegistry(), 3)
	msg, metrics, err := c.Step(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != llm.ReadyToChatText {
		t.Fatalf("expected canned ready-to-chat reply, got %q", msg.Content)
	}
	if metrics.TotalTokens != 0 || len(metrics.Estimated) != 0 {
		t.Fatalf("expected metrics=none, got %+v", metrics)
	}
}

type fakeLookupTool struct{}

func (fakeLookupTool) Name() string               { return "lookup" }
func (fakeLookupTool) Description() string        { return "looks things up" }
func (fakeLookupTool) JSONSchema() map[string]any { return map[string]any{"type": "object"} }
func (fakeLookupTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	return `{"result":"found"}`, nil
}
