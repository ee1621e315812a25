package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"turncore/internal/config"
	"turncore/internal/llm"
)

func TestGenerate_ReturnsText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:         "msg_1",
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: sdk.StopReasonEndTurn,
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "hello there"}},
			Usage:      sdk.Usage{InputTokens: 4, OutputTokens: 2},
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "k", Model: "claude-sonnet-4-5", BaseURL: srv.URL}, srv.Client())
	resp, err := c.Generate(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Metrics.InputTokens != 4 || resp.Metrics.OutputTokens != 2 {
		t.Fatalf("unexpected metrics: %+v", resp.Metrics)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
}

func TestGenerate_EmptyMessagesReturnsCannedReadyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("the model must not be called for an empty message history")
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
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

func TestGenerate_ToolCallWithNoTextUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:         "msg_2",
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: sdk.StopReasonToolUse,
			Content:    []sdk.ContentBlockUnion{{Type: "tool_use", Name: "lookup", ID: "call-1", Input: json.RawMessage(`{"x":2}`)}},
			Usage:      sdk.Usage{InputTokens: 1, OutputTokens: 1},
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	resp, err := c.Generate(context.Background(), []llm.Message{{Role: "user", Content: "go"}}, []llm.ToolSchema{
		{Name: "lookup", Description: "desc", Parameters: map[string]any{"type": "object"}},
	}, "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("expected fallback text for a tool-only response, got empty")
	}
}

func TestGenerate_ProviderErrorIsRendered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	resp, err := c.Generate(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, "")
	if err != nil {
		t.Fatalf("Generate should render provider errors, not return them: %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("expected a rendered error message")
	}
	if !resp.Metrics.IsEstimated("input_tokens") {
		t.Fatalf("expected estimated metrics on provider error")
	}
}
