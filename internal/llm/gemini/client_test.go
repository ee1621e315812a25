package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"turncore/internal/config"
	"turncore/internal/llm"
	"turncore/internal/tools"
)

func TestGenerate_SingleTurnNoTools(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello from gemini"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.ProviderConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL}, srv.Client(), tools.NewRegistry(), 3)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	resp, err := c.Generate(context.Background(), []llm.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}, nil, "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text != "hello from gemini" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Metrics.InputTokens != 3 || resp.Metrics.OutputTokens != 2 {
		t.Fatalf("unexpected metrics: %+v", resp.Metrics)
	}
	if gotPath != "/v1beta/models/test-model:generateContent" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
}

func TestGenerate_EmptyMessagesReturnsCannedReadyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("the model must not be called for an empty message history")
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.ProviderConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL}, srv.Client(), tools.NewRegistry(), 3)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

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

func TestStep_EmptyMessagesReturnsCannedReadyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("the model must not be called for an empty message history")
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.ProviderConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL}, srv.Client(), tools.NewRegistry(), 3)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

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

func TestGenerate_SafetyBlockRendersFallbackNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"finishReason":"SAFETY","content":{"role":"model","parts":[]}}]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.ProviderConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL}, srv.Client(), tools.NewRegistry(), 3)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	resp, err := c.Generate(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, "")
	if err != nil {
		t.Fatalf("Generate should never surface a raw provider error: %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("expected non-empty rendered text on a safety block")
	}
}
