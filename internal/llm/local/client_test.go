package local

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"turncore/internal/config"
	"turncore/internal/llm"
)

func TestStep_ReportsServerTokenCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi there"},"prompt_eval_count":12,"eval_count":4,"done":true}`))
	}))
	defer srv.Close()

	c := New(config.LocalProviderConfig{BaseURL: srv.URL, Model: "llama3", KeepAlive: "10m"}, srv.Client(), nil, 1)

	msg, metrics, err := c.Step(context.Background(), []llm.Message{{Role: "user", Content: "hello"}}, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "hi there" {
		t.Fatalf("expected content from server, got %q", msg.Content)
	}
	if metrics.InputTokens != 12 || metrics.OutputTokens != 4 || metrics.TotalTokens != 16 {
		t.Fatalf("expected server-reported token counts, got %+v", metrics)
	}
	if metrics.IsEstimated("input_tokens") {
		t.Fatalf("server-reported counts must not be marked estimated")
	}
}

func TestStep_FallsBackToEstimateWhenServerOmitsCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"a short reply"},"done":true}`))
	}))
	defer srv.Close()

	c := New(config.LocalProviderConfig{BaseURL: srv.URL, Model: "llama3"}, srv.Client(), nil, 1)

	_, metrics, err := c.Step(context.Background(), []llm.Message{{Role: "user", Content: "hello"}}, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !metrics.IsEstimated("total_tokens") {
		t.Fatalf("expected estimated token counts when server omits eval counts, got %+v", metrics)
	}
}

func TestGenerate_EmptyMessagesReturnsCannedReadyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("server should not be called for an empty message history")
	}))
	defer srv.Close()

	c := New(config.LocalProviderConfig{BaseURL: srv.URL, Model: "llama3"}, srv.Client(), nil, 1)

	resp, err := c.Generate(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != llm.ReadyToChatText {
		t.Fatalf("expected canned ready-to-chat reply, got %q", resp.Text)
	}
	if resp.Metrics.ElapsedSeconds != 0 || resp.Metrics.InputTokens != 0 || resp.Metrics.OutputTokens != 0 ||
		resp.Metrics.TotalTokens != 0 || len(resp.Metrics.Estimated) != 0 {
		t.Fatalf("expected metrics=none, got %+v", resp.Metrics)
	}
}

func TestStep_EmptyMessagesReturnsCannedReadyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("server should not be called for an empty message history")
	}))
	defer srv.Close()

	c := New(config.LocalProviderConfig{BaseURL: srv.URL, Model: "llama3"}, srv.Client(), nil, 1)

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

func TestStep_RendersNon200AsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model loading"))
	}))
	defer srv.Close()

	c := New(config.LocalProviderConfig{BaseURL: srv.URL, Model: "llama3"}, srv.Client(), nil, 1)

	_, _, err := c.Step(context.Background(), []llm.Message{{Role: "user", Content: "hello"}}, nil, "")
	if err == nil {
		t.Fatalf("expected an error for a non-200 response")
	}
}
