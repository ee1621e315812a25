// Package orchestrator implements the Turn Orchestrator (§4.6): the
// sequential per-turn pipeline that ties the Router, Search Manager,
// Context Analyzer, and Provider Abstraction together against the
// Conversation store, plus the concurrency model of §5 (single-writer per
// Conversation, a bounded global outbound semaphore).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"turncore/internal/contextanalyzer"
	"turncore/internal/decision"
	"turncore/internal/llm"
	"turncore/internal/observability"
	"turncore/internal/router"
	"turncore/internal/search"
	"turncore/internal/store"
	"turncore/internal/tools"
)

// Secondary/acceptance search-quality thresholds from §4.6 and §9 open
// question (c): "if the resulting score is below a secondary threshold
// (≈ 3.0), retry with the original unoptimized query; if still below an
// acceptance threshold (≈ 2.0), mark 'no relevant results'."
const (
	secondaryRetryThreshold = 3.0
	acceptanceThreshold     = 2.0
)

// noRelevantResultsNotice mirrors the original's user-facing fallback text
// for a search pass that never cleared the acceptance threshold.
const noRelevantResultsNotice = "no relevant search results"

// Providers maps a store.Model's Provider tag (e.g. "gemini", "anthropic",
// "openai", "xai", "local") to the adapter that serves it.
type Providers map[string]llm.Provider

// Result is the per-turn outcome handed back to the caller (§4.6 step 8:
// "hand ContextAnalysis... to the UI"), bundled with everything else a
// caller might want to render or log.
type Result struct {
	Conversation  store.Conversation
	AssistantText string
	Metrics       llm.ResponseMetrics
	Decision      router.Decision
	Search        search.Outcome
	Analysis      contextanalyzer.Analysis
}

// Orchestrator implements §4.6. All collaborators are passed in, per §9's
// "explicitly constructed values passed to component constructors; do not
// use ambient global mutable state."
type Orchestrator struct {
	conversations store.ConversationStore
	models        store.ModelStore
	prompts       store.PromptStore
	profiles      store.ProfileStore

	router   *router.Router
	search   *search.Manager
	context  *contextanalyzer.Analyzer
	decision decision.Client
	registry tools.Registry

	providers Providers

	locks *keyedMutex
	sem   *semaphore.Weighted
}

// New builds an Orchestrator. globalSemaphore <= 0 defaults to 5, the value
// named in §5 ("A global semaphore (default ≈ 5) bounds concurrent outbound
// model/search calls").
func New(
	conversations store.ConversationStore,
	models store.ModelStore,
	prompts store.PromptStore,
	profiles store.ProfileStore,
	r *router.Router,
	s *search.Manager,
	c *contextanalyzer.Analyzer,
	decisionClient decision.Client,
	registry tools.Registry,
	providers Providers,
	globalSemaphore int,
) *Orchestrator {
	if globalSemaphore <= 0 {
		globalSemaphore = 5
	}
	return &Orchestrator{
		conversations: conversations,
		models:        models,
		prompts:       prompts,
		profiles:      profiles,
		router:        r,
		search:        s,
		context:       c,
		decision:      decisionClient,
		registry:      registry,
		providers:     providers,
		locks:         newKeyedMutex(),
		sem:           semaphore.NewWeighted(int64(globalSemaphore)),
	}
}

// RunTurn implements §4.6's eight-step sequence. It serializes turns on the
// same conversationID (§5 "single-writer per Conversation") while letting
// turns on distinct conversations run concurrently.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID, utterance string) (Result, error) {
	unlock := o.locks.Lock(conversationID)
	defer unlock()

	ctx = observability.WithConversationID(ctx, conversationID)
	log := observability.LoggerWithTrace(ctx)

	conv, err := o.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: load conversation: %w", err)
	}

	// (1) snapshot UserProfile.
	profile, err := o.profiles.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("orchestrator_profile_lookup_failed")
	}

	// (2) ask Router.
	routeDecision, err := withSlot(ctx, o.sem, func(ctx context.Context) (router.Decision, error) {
		return o.router.Route(ctx, utterance), nil
	})
	if err != nil {
		return Result{}, err
	}

	// (3) conditionally run the Search Manager.
	outcome := o.runSearchIfNeeded(ctx, routeDecision, utterance)

	// (4) ask Context Analyzer.
	history := adaptHistory(conv.Messages)
	analysis, err := withSlot(ctx, o.sem, func(ctx context.Context) (contextanalyzer.Result, error) {
		return o.context.Analyze(ctx, utterance, history), nil
	})
	if err != nil {
		return Result{}, err
	}

	// (5) call Provider with the selected window plus optional search
	// passage.
	resp := o.generate(ctx, conv, profile, analysis.Window, outcome)

	// (6) persist the turn as a single atomic update.
	userMsg := store.Message{Role: "user", Content: utterance, CreatedAt: time.Now().UTC()}
	assistantMsg := store.Message{
		Role:          "assistant",
		Content:       resp.Text,
		SearchPassage: outcome.Passage,
		Metrics:       adaptMetrics(resp.Metrics),
	}
	updated, err := o.conversations.AppendTurn(ctx, conversationID, userMsg, assistantMsg)
	if err != nil {
		// §4.6 Atomicity: a failure after provider success but before
		// persistence is surfaced as an error; no assistant Message is
		// retained.
		return Result{}, fmt.Errorf("orchestrator: persist turn: %w", err)
	}

	// (7) UsageCounter is updated inside Router.Route itself.
	// (8) Analysis (including the new-chat suggestion) returns to the caller.
	return Result{
		Conversation:  updated,
		AssistantText: resp.Text,
		Metrics:       resp.Metrics,
		Decision:      routeDecision,
		Search:        outcome,
		Analysis:      analysis.Analysis,
	}, nil
}

// routeImpliesSearch reports whether decision requires running the Search
// Manager. Invariant I4 guarantees SearchEngine is non-empty for
// search_only and tool_with_search; a tool_direct or "combined" decision
// that also carries an engine runs the search too, so checking
// SearchEngine alone is sufficient.
func routeImpliesSearch(d router.Decision) bool {
	return strings.TrimSpace(d.SearchEngine) != ""
}

// runSearchIfNeeded implements §4.6 step 3: optimize the query with a hard
// fall-through to the original on error, run the Search Manager, retry with
// the original query if the score misses the secondary threshold, and mark
// "no relevant results" if it still misses the acceptance threshold.
func (o *Orchestrator) runSearchIfNeeded(ctx context.Context, d router.Decision, utterance string) search.Outcome {
	if !routeImpliesSearch(d) || o.search == nil {
		return search.Outcome{}
	}

	query := o.optimizeQuery(ctx, utterance)
	outcome, _ := withSlot(ctx, o.sem, func(ctx context.Context) (search.Outcome, error) {
		return o.search.SearchWithFallback(ctx, query), nil
	})

	if outcome.Score < secondaryRetryThreshold && query != utterance {
		retry, _ := withSlot(ctx, o.sem, func(ctx context.Context) (search.Outcome, error) {
			return o.search.SearchWithFallback(ctx, utterance), nil
		})
		if retry.Score > outcome.Score {
			outcome = retry
		}
	}

	if outcome.Score < acceptanceThreshold {
		outcome.Passage = noRelevantResultsNotice
	}
	return outcome
}

// optimizeQuery performs the "tiny LLM rewrite" named in §4.6 step 3, with
// a hard fall-through to the original utterance on any error or missing
// decision client.
func (o *Orchestrator) optimizeQuery(ctx context.Context, utterance string) string {
	if o.decision == nil {
		return utterance
	}
	qctx, cancel := decision.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Rewrite this user message as a concise, keyword-focused web search query. Reply with only the query text, no quotes or commentary.\n\nMessage: %s", utterance)
	rewritten, err := o.decision.Complete(qctx, prompt)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("orchestrator_query_optimization_failed")
		return utterance
	}
	rewritten = strings.Trim(strings.TrimSpace(rewritten), `"`)
	if rewritten == "" {
		return utterance
	}
	return rewritten
}

// generate implements §4.6 step 5: look up the Conversation's Model and
// Provider, build the enhanced system prompt, and call the Provider.
// Configuration failures (unknown model, unconfigured provider) render as a
// structured Response rather than raising, per §7's taxonomy: "Surfaced at
// startup and per-turn as a plain error response; never crashes."
func (o *Orchestrator) generate(ctx context.Context, conv store.Conversation, profile store.UserProfile, window []contextanalyzer.Message, outcome search.Outcome) llm.Response {
	model, ok, err := o.models.Get(ctx, conv.ModelID)
	if err != nil || !ok {
		return configErrorResponse(fmt.Sprintf("model %q is not configured", conv.ModelID))
	}
	provider, ok := o.providers[model.Provider]
	if !ok {
		return configErrorResponse(fmt.Sprintf("provider %q is not configured", model.Provider))
	}

	prompt, _, err := o.prompts.Get(ctx, conv.PromptID)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("orchestrator_prompt_lookup_failed")
	}

	systemPrompt := buildSystemPrompt(prompt, profile, time.Now())
	msgs := buildProviderMessages(systemPrompt, window, outcome.Passage)

	var schemas []llm.ToolSchema
	if o.registry != nil {
		schemas = o.registry.Schemas()
	}
	resp, err := withSlot(ctx, o.sem, func(ctx context.Context) (llm.Response, error) {
		return provider.Generate(ctx, msgs, schemas, model.Name)
	})
	if err != nil {
		return configErrorResponse(fmt.Sprintf("provider request failed: %s", err.Error()))
	}
	return resp
}

// buildProviderMessages assembles the normalized request shape from §4.5:
// the enhanced system prompt, the analyzer-selected window (which already
// ends with the current utterance), and an optional trailing search-passage
// turn.
func buildProviderMessages(systemPrompt string, window []contextanalyzer.Message, searchPassage string) []llm.Message {
	msgs := make([]llm.Message, 0, len(window)+2)
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range window {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if strings.TrimSpace(searchPassage) != "" && searchPassage != noRelevantResultsNotice {
		msgs = append(msgs, llm.Message{Role: "user", Content: "Here are the search results to help you answer:\n\n" + searchPassage})
	}
	return msgs
}

func configErrorResponse(msg string) llm.Response {
	return llm.Response{
		Text:    msg,
		Metrics: llm.ResponseMetrics{Estimated: []string{"elapsed_seconds", "input_tokens", "output_tokens"}},
	}
}

func adaptHistory(msgs []store.Message) []contextanalyzer.Message {
	out := make([]contextanalyzer.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, contextanalyzer.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func adaptMetrics(m llm.ResponseMetrics) *store.ResponseMetrics {
	return &store.ResponseMetrics{
		ElapsedSeconds: m.ElapsedSeconds,
		InputTokens:    m.InputTokens,
		OutputTokens:   m.OutputTokens,
		TotalTokens:    m.TotalTokens,
		Estimated:      append([]string(nil), m.Estimated...),
	}
}

// withSlot runs fn while holding one unit of the global outbound-call
// semaphore (§5 Backpressure), propagating ctx cancellation into the
// acquire wait itself.
func withSlot[T any](ctx context.Context, sem *semaphore.Weighted, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if sem == nil {
		return fn(ctx)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer sem.Release(1)
	return fn(ctx)
}
