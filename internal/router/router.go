package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"turncore/internal/decision"
	"turncore/internal/observability"
	"turncore/internal/tools"
)

// routingPromptHeader is the fixed system instruction enumerating the
// registered tools, route kinds, heuristics, and the strict JSON reply
// schema (§4.3 Primary path). Carried from the original's
// `COMPREHENSIVE_ROUTING_PROMPT`.
const routingPromptHeader = `You are an expert AI query router for a multi-provider conversational assistant. Analyze the user query and choose the optimal routing strategy.

ROUTING OPTIONS:
- tool_direct: use a specific tool immediately (high confidence)
- tool_with_search: use a tool but verify/supplement with search (medium confidence)
- search_only: use web search without tools (current events, facts, store info)
- model_knowledge: use the model's internal knowledge (no tools/search needed)
- combined: use multiple approaches together

DECISION CRITERIA:
- Weather queries about a named place -> get_weather_forecast.
- Weather about "my"/"home"/"personal" conditions -> get_home_weather or get_pws_current_conditions.
- Recent news, stock prices, "what happened" -> brave_search.
- Store hours, addresses, phone numbers -> serper_search.
- Historical facts, science, math, creative writing, conversation -> model_knowledge.
- Fictional locations and vague queries with no tool match -> model_knowledge or search_only.

AVAILABLE TOOLS:
%s

Respond with ONLY a JSON object with these fields:
{"routing_decision": "tool_direct|tool_with_search|search_only|model_knowledge|combined", "primary_tool": "<tool name or null>", "search_provider": "brave|serper|null", "confidence": 0.0-1.0, "reasoning": "...", "fallback_options": ["..."]}

User query: %s`

// llmReply is the exact wire shape named in §4.3 and §6 ("Routing decision
// JSON").
type llmReply struct {
	RoutingDecision string   `json:"routing_decision"`
	PrimaryTool     *string  `json:"primary_tool"`
	SearchProvider  *string  `json:"search_provider"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	FallbackOptions []string `json:"fallback_options"`
}

// Router implements §4.3: an LLM decision with a deterministic rule-based
// fallback, reporting every decision to a UsageCounter.
type Router struct {
	decision decision.Client
	registry tools.Registry
	usage    *UsageCounter
	mirror   *RedisMirror
	timeout  time.Duration
}

// New builds a Router. decisionClient may be nil, in which case every
// decision goes through the rule-based fallback (still recorded as a
// fallback use, reason "decision model not configured"). mirror may be nil
// (no Redis configured); every mirror write is then a no-op.
func New(decisionClient decision.Client, registry tools.Registry, usage *UsageCounter, mirror *RedisMirror, timeout time.Duration) *Router {
	if usage == nil {
		usage = NewUsageCounter()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Router{decision: decisionClient, registry: registry, usage: usage, mirror: mirror, timeout: timeout}
}

// Usage returns the shared UsageCounter so callers can surface telemetry.
func (r *Router) Usage() *UsageCounter { return r.usage }

// Route classifies utterance into a Decision, trying the LLM path first and
// falling back to deterministic rules on any parse or transport failure
// (§4.3). A 0-token utterance routes to model_knowledge with confidence
// <= 0.5 (§8 boundary behavior).
func (r *Router) Route(ctx context.Context, utterance string) Decision {
	if strings.TrimSpace(utterance) == "" {
		d := Decision{Route: RouteModelKnowledge, Confidence: 0.3, Reasoning: "empty utterance", Method: "fallback"}
		r.recordFallback(ctx, "empty utterance")
		return d
	}

	if r.decision != nil {
		d, err := r.routeWithLLM(ctx, utterance)
		if err == nil {
			r.usage.RecordLLMSuccess()
			r.mirror.MirrorLLMSuccess(ctx)
			return d
		}
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("router_llm_failed_using_fallback")
		r.recordFallback(ctx, "LLM routing failed: "+err.Error())
	} else {
		r.recordFallback(ctx, "decision model not configured")
	}

	d := RuleFallback(utterance)
	d.Reasoning = "FALLBACK: " + d.Reasoning
	return d
}

func (r *Router) recordFallback(ctx context.Context, reason string) {
	r.usage.RecordFallback(reason)
	r.mirror.MirrorFallback(ctx, reason)
}

func (r *Router) routeWithLLM(ctx context.Context, utterance string) (Decision, error) {
	ctx, cancel := decision.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf(routingPromptHeader, toolCatalog(r.registry), utterance)
	raw, err := r.decision.Complete(ctx, prompt)
	if err != nil {
		return Decision{}, err
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return Decision{}, fmt.Errorf("malformed routing JSON: %w", err)
	}

	route, ok := parseRoute(reply.RoutingDecision)
	if !ok {
		return Decision{}, fmt.Errorf("unknown routing_decision %q", reply.RoutingDecision)
	}

	d := Decision{
		Route:           route,
		Confidence:      clamp01(reply.Confidence),
		Reasoning:       reply.Reasoning,
		FallbackOptions: reply.FallbackOptions,
		Method:          "llm",
	}
	if reply.PrimaryTool != nil {
		name := strings.TrimSpace(*reply.PrimaryTool)
		if name != "" {
			if _, known := r.registry.Lookup(name); !known {
				return Decision{}, fmt.Errorf("LLM named unregistered tool %q", name)
			}
			d.PrimaryTool = name
		}
	}
	if reply.SearchProvider != nil {
		d.SearchEngine = strings.ToLower(strings.TrimSpace(*reply.SearchProvider))
	}

	if (d.Route == RouteSearchOnly || d.Route == RouteToolWithSearch) && d.SearchEngine == "" {
		return Decision{}, fmt.Errorf("route %q requires a search_provider", d.Route)
	}

	return d, nil
}

func parseRoute(s string) (RouteKind, bool) {
	switch RouteKind(s) {
	case RouteToolDirect, RouteToolWithSearch, RouteSearchOnly, RouteModelKnowledge, RouteCombined:
		return RouteKind(s), true
	default:
		return "", false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toolCatalog(registry tools.Registry) string {
	if registry == nil {
		return "(no tools registered)"
	}
	var sb strings.Builder
	for _, d := range registry.Descriptors() {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
	}
	if sb.Len() == 0 {
		return "(no tools registered)"
	}
	return sb.String()
}
