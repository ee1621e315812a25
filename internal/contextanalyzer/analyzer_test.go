package contextanalyzer

import "testing"

func TestAnalyze_EmptyHistoryStandalone(t *testing.T) {
	a := New(nil, 0)
	r := a.Analyze(nil, "What's the weather today?", nil)
	if len(r.Window) != 1 {
		t.Fatalf("expected a single-message window for standalone question with no history, got %d", len(r.Window))
	}
}

func TestAnalyze_ShortHistoryContextDependent(t *testing.T) {
	a := New(nil, 0)
	history := []Message{
		{Role: "user", Content: "Tell me about the Eiffel Tower"},
		{Role: "assistant", Content: "It's a landmark in Paris"},
	}
	r := a.Analyze(nil, "How tall is it?", history)
	if len(r.Window) < len(history) {
		t.Fatalf("context-dependent question with short history should never return a negative-length or truncated window, got %d messages", len(r.Window))
	}
}

func TestAnalyze_StandaloneInterruption(t *testing.T) {
	a := New(nil, 0)
	history := make([]Message, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, Message{Role: "user", Content: "why does this python function raise a traceback error when debugging"})
	}
	r := a.Analyze(nil, "What's the temperature outside?", history)
	if r.Analysis.NeedsFullContext {
		t.Fatalf("expected standalone weather interruption to not need full context, got %+v", r.Analysis)
	}
	if len(r.Window) != 1 {
		t.Fatalf("expected window to contain only the current question, got %d messages", len(r.Window))
	}
}

func TestClassifyPattern_TieDefaultsToContextDependent(t *testing.T) {
	r := classifyPattern("hello there")
	if !r.needsFullContext {
		t.Fatalf("a tie (no pattern hits) must default to context-dependent for safety, got %+v", r)
	}
}
