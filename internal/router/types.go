// Package router implements the Router component (§4.3): classifying a
// user utterance into a RoutingDecision via a primary LLM decision with a
// deterministic rule-based fallback, plus the usage telemetry §3's
// UsageCounter entity describes.
package router

// RouteKind is one of the five route kinds the Router can produce (§3
// RoutingDecision, GLOSSARY "Route kind").
type RouteKind string

const (
	RouteToolDirect     RouteKind = "tool_direct"
	RouteToolWithSearch RouteKind = "tool_with_search"
	RouteSearchOnly     RouteKind = "search_only"
	RouteModelKnowledge RouteKind = "model_knowledge"
	RouteCombined       RouteKind = "combined"
)

// Decision is §3's RoutingDecision entity: ephemeral, produced per turn and
// discarded after use.
type Decision struct {
	Route           RouteKind
	PrimaryTool     string // empty means none (invariant I3)
	SearchEngine    string // "brave" | "serper" | "" (invariant I4)
	Confidence      float64
	Reasoning       string
	FallbackOptions []string
	// Method records how the decision was produced, for telemetry/debugging
	// only; it is not part of the wire-level RoutingDecision JSON.
	Method string // "llm" | "fallback"
}
