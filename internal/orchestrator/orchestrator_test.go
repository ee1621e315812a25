package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"turncore/internal/contextanalyzer"
	"turncore/internal/llm"
	"turncore/internal/router"
	"turncore/internal/search"
	"turncore/internal/store"
	"turncore/internal/store/memory"
	"turncore/internal/tools"
)

// fakeProvider is a canned llm.Provider that records the messages it was
// called with and always returns the configured response.
type fakeProvider struct {
	resp     llm.Response
	err      error
	lastMsgs []llm.Message
}

func (f *fakeProvider) Generate(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Response, error) {
	f.lastMsgs = msgs
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return f.resp, nil
}

// fakeSearchTool is a canned tools.Tool standing in for brave_search/
// serper_search during Search Manager runs triggered from the orchestrator.
type fakeSearchTool struct {
	name   string
	result string
}

func (t fakeSearchTool) Name() string                 { return t.name }
func (t fakeSearchTool) Description() string          { return "fake search" }
func (t fakeSearchTool) JSONSchema() map[string]any    { return map[string]any{"type": "object"} }
func (t fakeSearchTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	return t.result, nil
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, searchResult string) (*Orchestrator, store.ConversationStore, store.Conversation) {
	t.Helper()

	registry := tools.NewRegistry()
	if err := registry.Register(fakeSearchTool{name: "brave_search", result: searchResult}, false); err != nil {
		t.Fatalf("register brave_search: %v", err)
	}
	if err := registry.Register(fakeSearchTool{name: "serper_search", result: searchResult}, false); err != nil {
		t.Fatalf("register serper_search: %v", err)
	}

	convStore := memory.NewConversationStore()
	modelStore := memory.NewModelStore(store.Model{Name: "test-model", Provider: "fake"})
	promptStore := memory.NewPromptStore()
	profileStore := memory.NewProfileStore(store.UserProfile{DisplayName: "Ada", Timezone: "UTC"})

	r := router.New(nil, registry, nil, nil, time.Second)
	s := search.New(registry, nil, time.Second, 2, search.DefaultQualityThreshold)
	c := contextanalyzer.New(nil, time.Second)

	o := New(convStore, modelStore, promptStore, profileStore, r, s, c, nil, registry,
		Providers{"fake": provider}, 5)

	conv, err := convStore.CreateConversation(context.Background(), "chat", "test-model", "")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return o, convStore, conv
}

func TestRunTurn_ModelKnowledgeRoutePersistsTurn(t *testing.T) {
	provider := &fakeProvider{resp: llm.Response{
		Text:    "Paris is the capital of France.",
		Metrics: llm.ResponseMetrics{ElapsedSeconds: 0.5, InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}}
	o, convStore, conv := newTestOrchestrator(t, provider, "no results")

	result, err := o.RunTurn(context.Background(), conv.ID, "What is the capital of France?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.AssistantText != "Paris is the capital of France." {
		t.Fatalf("unexpected assistant text: %q", result.AssistantText)
	}
	if result.Decision.Route != router.RouteModelKnowledge {
		t.Fatalf("expected model_knowledge route, got %q", result.Decision.Route)
	}
	if result.Search.Engine != "" {
		t.Fatalf("expected no search for a model_knowledge route, got %+v", result.Search)
	}

	updated, err := convStore.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(updated.Messages))
	}
	if updated.Messages[1].Content != "Paris is the capital of France." {
		t.Fatalf("unexpected persisted assistant content: %q", updated.Messages[1].Content)
	}
	if !updated.UpdatedAt.After(conv.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to strictly increase")
	}
}

func TestRunTurn_SearchOnlyRouteAppendsPassage(t *testing.T) {
	provider := &fakeProvider{resp: llm.Response{Text: "Here is what I found."}}
	o, _, conv := newTestOrchestrator(t, provider, "Apple announced new products at its latest event.")

	result, err := o.RunTurn(context.Background(), conv.ID, "What happened at the latest Apple event?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Decision.SearchEngine == "" {
		t.Fatalf("expected a route that requires search, got %+v", result.Decision)
	}
	if result.Search.Passage == "" {
		t.Fatalf("expected a non-empty search passage, got %+v", result.Search)
	}

	foundPassage := false
	for _, m := range provider.lastMsgs {
		if m.Role == "user" && strings.Contains(m.Content, "search results") {
			foundPassage = true
		}
	}
	if !foundPassage {
		t.Fatalf("expected the search passage to be appended as a trailing user turn, got %+v", provider.lastMsgs)
	}
}

func TestRunTurn_UnknownConversationReturnsError(t *testing.T) {
	provider := &fakeProvider{resp: llm.Response{Text: "irrelevant"}}
	o, _, _ := newTestOrchestrator(t, provider, "no results")

	if _, err := o.RunTurn(context.Background(), "missing-conversation", "hello"); err == nil {
		t.Fatalf("expected an error for an unknown conversation")
	}
}

func TestRunTurn_UnconfiguredProviderRendersConfigurationError(t *testing.T) {
	provider := &fakeProvider{resp: llm.Response{Text: "unused"}}
	o, convStore, conv := newTestOrchestrator(t, provider, "no results")
	o.providers = Providers{} // no adapters wired for any provider tag

	result, err := o.RunTurn(context.Background(), conv.ID, "What is the capital of France?")
	if err != nil {
		t.Fatalf("RunTurn should render, not return, a configuration error: %v", err)
	}
	if result.AssistantText == "" {
		t.Fatalf("expected a rendered configuration-error message")
	}
	if !result.Metrics.IsEstimated("input_tokens") {
		t.Fatalf("expected configuration-error metrics to be flagged estimated")
	}

	updated, err := convStore.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("a configuration error still completes and persists the turn, got %d messages", len(updated.Messages))
	}
}

