package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// toolPattern mirrors one entry of `intelligent_router.py`'s
// `tool_patterns` table: a tool's regex patterns, keyword list, and
// confidence boost applied once any pattern or keyword matches.
type toolPattern struct {
	name             string
	patterns         []*regexp.Regexp
	keywords         []string
	locationMarkers  []string
	confidenceBoost  float64
}

// toolConfidence is §4.3's per-tool confidence assessment (`ToolConfidence`
// in the original).
type toolConfidence struct {
	tool       string
	confidence float64
	reason     string
}

var toolPatterns = []toolPattern{
	{
		name: "get_weather_forecast",
		patterns: compilePatterns(
			`\bweather\b.*\bin\b`,
			`\bforecast\b.*\bfor\b`,
			`\btemperature\b.*\bin\b`,
			`\b(rain|snow|sun)\b.*\bin\b`,
			`\bhow.*hot.*in\b`,
			`\bclimate\b.*\bin\b`,
		),
		keywords:        []string{"weather", "forecast", "temperature", "rain", "snow", "climate"},
		locationMarkers: []string{"in", "at", "for"},
		confidenceBoost: 0.3,
	},
	{
		name: "get_pws_current_conditions",
		patterns: compilePatterns(
			`\b(home|my|personal)\b.*\b(weather|temperature|station)\b`,
			`\bPWS\b`,
			`\bweather station\b.*\b(my|home|personal)\b`,
			`\bcurrent.*\b(home|my)\b.*\b(weather|temp)\b`,
			`\bPWS\b.*\b(current|conditions|temperature|weather)\b`,
		),
		keywords:        []string{"home", "my", "personal", "pws", "station", "conditions"},
		confidenceBoost: 0.5,
	},
	{
		name: "get_home_weather",
		patterns: compilePatterns(
			`\b(home|my|personal)\b.*\bweather\b`,
			`\bweather.*\b(home|house)\b`,
			`\b(my|our)\b.*\b(station|tempest)\b`,
		),
		keywords:        []string{"home", "my", "personal", "house", "tempest"},
		confidenceBoost: 0.4,
	},
	{
		name: "brave_search",
		patterns: compilePatterns(
			`\b(latest|recent|current|new)\b.*\b(news|events)\b`,
			`\bwhat.*happened\b`,
			`\bstock price\b`,
			`\bcompany.*\b(revenue|earnings)\b`,
		),
		keywords:        []string{"latest", "recent", "current", "news", "stock", "company"},
		confidenceBoost: 0.2,
	},
	{
		name: "serper_search",
		patterns: compilePatterns(
			`\bwhere.*\bopen\b`,
			`\bstore hours\b`,
			`\bphone number\b`,
			`\baddress.*\bof\b`,
		),
		keywords:        []string{"hours", "address", "phone", "location", "store"},
		confidenceBoost: 0.2,
	},
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile("(?i)"+e))
	}
	return out
}

var currentIndicators = compilePatterns(
	`\b(latest|recent|current|today|now|this week|this month)\b`,
	`\b(stock price|market|news|events)\b`,
	`\b(what.*happened|breaking|update)\b`,
	`\b(store hours|phone number|address)\b`,
	`\b(open|closed|available)\b.*\b(now|today)\b`,
)

var futureIndicators = compilePatterns(
	`\b(when.*will|upcoming|scheduled|next)\b`,
	`\b(forecast|prediction|estimate)\b.*\b(next|future)\b`,
)

// assessToolConfidence ports `assess_tool_confidence` verbatim in semantics:
// 0.3 per pattern match, 0.2 per keyword hit, a one-time confidence_boost
// once anything matched, plus a location-marker boost for tools that
// declare location markers. Confidence is capped at 1.0.
func assessToolConfidence(query string, tp toolPattern) toolConfidence {
	lower := strings.ToLower(query)
	var confidence float64
	var reasons []string

	patternMatches := 0
	for _, p := range tp.patterns {
		if p.MatchString(lower) {
			patternMatches++
			confidence += 0.3
			reasons = append(reasons, "pattern match: "+p.String())
		}
	}

	keywordMatches := 0
	for _, kw := range tp.keywords {
		if strings.Contains(lower, kw) {
			keywordMatches++
			confidence += 0.2
			reasons = append(reasons, "keyword: "+kw)
		}
	}

	for _, marker := range tp.locationMarkers {
		if strings.Contains(lower, " "+marker+" ") {
			confidence += tp.confidenceBoost
			reasons = append(reasons, "location indicator: "+marker)
			break
		}
	}

	if tp.confidenceBoost > 0 && (patternMatches > 0 || keywordMatches > 0) {
		confidence += tp.confidenceBoost
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	top := reasons
	if len(top) > 3 {
		top = top[:3]
	}
	reason := fmt.Sprintf("patterns: %d, keywords: %d. %s", patternMatches, keywordMatches, strings.Join(top, "; "))
	return toolConfidence{tool: tp.name, confidence: confidence, reason: reason}
}

// assessAllTools scores every known tool pattern and returns them sorted by
// descending confidence, mirroring `assess_all_tools`.
func assessAllTools(query string) []toolConfidence {
	out := make([]toolConfidence, 0, len(toolPatterns))
	for _, tp := range toolPatterns {
		out = append(out, assessToolConfidence(query, tp))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].confidence > out[j].confidence })
	return out
}

// needsExternalSearch ports `needs_external_search`: a current/future
// information-need detector independent of tool confidence.
func needsExternalSearch(query string) (bool, string) {
	lower := strings.ToLower(query)
	for _, p := range currentIndicators {
		if p.MatchString(lower) {
			return true, "detected current information need: " + p.String()
		}
	}
	for _, p := range futureIndicators {
		if p.MatchString(lower) {
			return true, "detected future information need: " + p.String()
		}
	}
	return false, "no external information indicators found"
}

// chooseSearchEngine picks between brave and serper when a route needs a
// search engine but the best-matching tool isn't itself a search tool: the
// engine whose own pattern table scores higher, defaulting to brave on a
// tie (the original always lists brave_search first in its rotation).
func chooseSearchEngine(query string, assessed []toolConfidence) string {
	var braveScore, serperScore float64
	for _, a := range assessed {
		switch a.tool {
		case "brave_search":
			braveScore = a.confidence
		case "serper_search":
			serperScore = a.confidence
		}
	}
	if serperScore > braveScore {
		return "serper"
	}
	return "brave"
}

// RuleFallback computes a RoutingDecision deterministically from query
// alone (§4.3 fallback path). Two calls on the same query always return the
// identical Decision (§8 round-trip law: "routing idempotence").
func RuleFallback(query string) Decision {
	const (
		high   = 0.8
		medium = 0.4
		low    = 0.2
	)

	assessed := assessAllTools(query)
	var best toolConfidence
	if len(assessed) > 0 {
		best = assessed[0]
	}
	needsSearch, searchReason := needsExternalSearch(query)

	switch {
	case best.confidence >= high:
		fallback := []string{}
		if needsSearch {
			fallback = []string{"search"}
		}
		return Decision{
			Route:           RouteToolDirect,
			PrimaryTool:     best.tool,
			SearchEngine:    engineIfNeeded(needsSearch, best.tool, chooseSearchEngine(query, assessed)),
			Confidence:      best.confidence,
			Reasoning:       fmt.Sprintf("high tool confidence (%.2f): %s", best.confidence, best.reason),
			FallbackOptions: fallback,
			Method:          "fallback",
		}

	case best.confidence >= medium && needsSearch && (best.tool == "brave_search" || best.tool == "serper_search"):
		// The best-matching tool is itself a search engine: search alone
		// answers the query.
		return Decision{
			Route:        RouteSearchOnly,
			SearchEngine: engineIfNeeded(needsSearch, best.tool, ""),
			Confidence:   best.confidence,
			Reasoning:    fmt.Sprintf("search tool matched + search needed: %s", best.reason),
			Method:       "fallback",
		}

	case best.confidence >= medium && needsSearch:
		return Decision{
			Route:           RouteToolWithSearch,
			PrimaryTool:     best.tool,
			SearchEngine:    chooseSearchEngine(query, assessed),
			Confidence:      best.confidence,
			Reasoning:       fmt.Sprintf("medium tool confidence + search needed: %s", best.reason),
			FallbackOptions: []string{"search_verification"},
			Method:          "fallback",
		}

	case best.confidence >= medium:
		return Decision{
			Route:       RouteToolDirect,
			PrimaryTool: best.tool,
			Confidence:  best.confidence,
			Reasoning:   fmt.Sprintf("medium tool confidence, no search needed: %s", best.reason),
			Method:      "fallback",
		}

	case needsSearch:
		fallback := []string{}
		if best.confidence >= low {
			fallback = []string{best.tool}
		}
		return Decision{
			Route:           RouteSearchOnly,
			SearchEngine:    chooseSearchEngine(query, assessed),
			Confidence:      0.7,
			Reasoning:       fmt.Sprintf("search needed for current info: %s", searchReason),
			FallbackOptions: fallback,
			Method:          "fallback",
		}

	case best.confidence >= low:
		return Decision{
			Route:           RouteToolDirect,
			PrimaryTool:     best.tool,
			Confidence:      best.confidence,
			Reasoning:       fmt.Sprintf("low-medium tool confidence: %s", best.reason),
			FallbackOptions: []string{"search"},
			Method:          "fallback",
		}

	default:
		fallback := []string{}
		if len(strings.Fields(query)) > 3 {
			fallback = []string{"search"}
		}
		return Decision{
			Route:           RouteModelKnowledge,
			Confidence:      0.6,
			Reasoning:       "no suitable tools found, using model knowledge",
			FallbackOptions: fallback,
			Method:          "fallback",
		}
	}
}

// engineIfNeeded leaves the search engine field empty for a tool_direct
// route unless the best tool is itself a search tool or the caller needs a
// search fallback — keeping invariant I4 scoped to routes that actually
// require it.
func engineIfNeeded(needsSearch bool, tool, engine string) string {
	if tool == "brave_search" || tool == "serper_search" {
		if tool == "brave_search" {
			return "brave"
		}
		return "serper"
	}
	if needsSearch {
		return engine
	}
	return ""
}
