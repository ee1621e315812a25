// Package contextanalyzer implements the Context Analyzer (§4.4): for each
// turn, decide what slice of prior Messages to forward to the Provider,
// detect topic establishment, and surface a new-chat suggestion.
//
// Named `contextanalyzer` rather than `context` so it never shadows the
// standard library's `context` package at import sites.
package contextanalyzer

// Method is §3's ContextAnalysis.analysis_method enum.
type Method string

const (
	MethodLLM      Method = "llm"
	MethodPattern  Method = "pattern"
	MethodFallback Method = "fallback"
)

// Message is the minimal turn shape the analyzer needs: role and content.
// Callers adapt their own Message/store types into this at the call site.
type Message struct {
	Role    string
	Content string
}

// Analysis is §3's ContextAnalysis entity: ephemeral, produced per turn.
type Analysis struct {
	NeedsFullContext bool
	Confidence       float64
	Reasoning        string
	Method           Method
	TopicEstablished bool
	MainTopic        string
	SuggestNewChat   bool
	NewChatReasoning string
}
