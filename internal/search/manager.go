// Package search implements the Search Manager (§4.2): engine rotation with
// LLM-rated quality assessment and cross-engine fallback.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"turncore/internal/decision"
	"turncore/internal/observability"
	"turncore/internal/tools"
)

// DefaultMaxAttempts and DefaultQualityThreshold are the source-derived
// constants named in §4.2 and §9 open question (c).
const (
	DefaultMaxAttempts      = 5
	DefaultQualityThreshold = 7.0
)

// interAttemptDelay mirrors `search_manager.py`'s `time.sleep(1)` between
// attempts after the first, to avoid rate limiting (SPEC_FULL.md
// supplemented features).
const interAttemptDelay = 1 * time.Second

// engines is the fixed rotation order (§4.2 Algorithm: "Brave, Serper, …").
var engines = []string{"brave_search", "serper_search"}

// Outcome is §3's SearchOutcome entity.
type Outcome struct {
	Passage string
	Score   float64
	Engine  string
	Attempts int
}

// Manager implements §4.2. decisionClient may be nil, in which case every
// result is scored with a neutral default (mirrors the original's
// `except Exception: return 5.0`).
type Manager struct {
	registry        tools.Registry
	decision        decision.Client
	maxAttempts     int
	qualityThreshold float64
	ratingTimeout   time.Duration
	sleep           func(time.Duration)
}

// New builds a Manager with source-derived defaults; pass 0/nil to accept
// the default max attempts and quality threshold.
func New(registry tools.Registry, decisionClient decision.Client, ratingTimeout time.Duration, maxAttempts int, qualityThreshold float64) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if qualityThreshold <= 0 {
		qualityThreshold = DefaultQualityThreshold
	}
	if ratingTimeout <= 0 {
		ratingTimeout = 10 * time.Second
	}
	return &Manager{
		registry:         registry,
		decision:         decisionClient,
		maxAttempts:      maxAttempts,
		qualityThreshold: qualityThreshold,
		ratingTimeout:    ratingTimeout,
		sleep:            time.Sleep,
	}
}

// SearchWithFallback implements §4.2's Algorithm: rotate engines up to
// maxAttempts or until the quality threshold is met, keeping the best
// passage seen. If every attempt fails, returns ("", 0, "") and never
// raises (§8 boundary behavior).
func (m *Manager) SearchWithFallback(ctx context.Context, query string) Outcome {
	log := observability.LoggerWithTrace(ctx)
	var best Outcome

	for attempt := 0; attempt < m.maxAttempts && best.Score < m.qualityThreshold; attempt++ {
		engineTool := engines[attempt%len(engines)]

		if attempt > 0 {
			m.sleep(interAttemptDelay)
		}

		result, err := m.runEngine(ctx, engineTool, query)
		best.Attempts = attempt + 1
		if err != nil {
			log.Warn().Err(err).Str("engine", engineTool).Msg("search_manager_engine_error")
			continue
		}

		score := m.assessQuality(ctx, query, result)
		log.Info().Str("engine", engineTool).Float64("score", score).Msg("search_manager_attempt")

		if score > best.Score {
			best.Score = score
			best.Passage = result
			best.Engine = engineLabel(engineTool)
		}

		if score >= m.qualityThreshold {
			break
		}
	}

	return best
}

func engineLabel(toolName string) string {
	switch toolName {
	case "brave_search":
		return "brave"
	case "serper_search":
		return "serper"
	default:
		return toolName
	}
}

func (m *Manager) runEngine(ctx context.Context, engineTool, query string) (string, error) {
	if m.registry == nil {
		return "", fmt.Errorf("search manager: no tool registry configured")
	}
	if _, ok := m.registry.Lookup(engineTool); !ok {
		return "", fmt.Errorf("search engine not found: %s", engineTool)
	}
	args, _ := json.Marshal(map[string]any{"query": query, "num_results": 3})
	out, err := m.registry.Dispatch(ctx, engineTool, args)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// assessQuality ports `assess_result_quality`: ask the decision model to
// rate 0-10 on relevance/completeness/credibility, defaulting to 0 for an
// empty/no-results passage and 5.0 (neutral) when the rating call fails.
func (m *Manager) assessQuality(ctx context.Context, query, result string) float64 {
	if strings.TrimSpace(result) == "" || strings.Contains(strings.ToLower(result), "no results") {
		return 0
	}
	if m.decision == nil {
		return 5.0
	}

	ctx, cancel := decision.WithTimeout(ctx, m.ratingTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`Rate the quality of this search result (0-10) for the query: %q

Consider:
1. Relevance to the query (0-4 points)
2. Completeness of information (0-3 points)
3. Source credibility (0-3 points)

Search Result:
%s

Respond with ONLY a JSON object: {"score": 0.0-10.0}`, query, result)

	raw, err := m.decision.Complete(ctx, prompt)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("search_manager_quality_rating_failed")
		return 5.0
	}

	var reply struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		if v, perr := strconv.ParseFloat(strings.TrimSpace(raw), 64); perr == nil {
			return clampScore(v)
		}
		return 5.0
	}
	return clampScore(reply.Score)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
