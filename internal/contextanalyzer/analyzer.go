package contextanalyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"turncore/internal/decision"
	"turncore/internal/observability"
)

// Analyzer implements §4.4. A nil Decision client means every call runs
// through the pattern-based fallback paths.
type Analyzer struct {
	decision decision.Client
	timeout  time.Duration
}

// New builds an Analyzer. decisionClient may be nil.
func New(decisionClient decision.Client, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Analyzer{decision: decisionClient, timeout: timeout}
}

// Result bundles the ContextAnalysis with the selected Message window, since
// §4.4 "Outputs" says both are produced together and passed to the Provider.
type Result struct {
	Analysis Analysis
	Window   []Message
}

// Analyze runs the full §4.4 algorithm: classify standalone/context-
// dependent, detect topic establishment, score relevance, select the
// window, and decide a new-chat suggestion.
func (a *Analyzer) Analyze(ctx context.Context, question string, history []Message) Result {
	classification := a.classify(ctx, question, history)

	if len(history) < 4 {
		window := []Message{{Role: "user", Content: question}}
		if classification.needsFullContext {
			window = append(append([]Message(nil), history...), Message{Role: "user", Content: question})
		}
		analysis := Analysis{
			NeedsFullContext: classification.needsFullContext,
			Confidence:       classification.confidence,
			Reasoning:        classification.reasoning,
			Method:           classification.method,
			TopicEstablished: false,
		}
		return Result{Analysis: analysis, Window: window}
	}

	topic := a.detectTopic(ctx, history)
	relevance := a.relevance(ctx, question, topic, classification.needsFullContext)

	window := selectWindow(history, question, classification.needsFullContext, topic, relevance)

	analysis := Analysis{
		NeedsFullContext: classification.needsFullContext,
		Confidence:       classification.confidence,
		Reasoning:        classification.reasoning,
		Method:           classification.method,
		TopicEstablished: topic.established,
		MainTopic:        topic.topic,
	}
	analysis.SuggestNewChat, analysis.NewChatReasoning = suggestNewChat(question, history, classification, topic)

	return Result{Analysis: analysis, Window: window}
}

// selectWindow implements §4.4 step 5.
func selectWindow(history []Message, question string, needsFullContext bool, topic topicResult, relevance float64) []Message {
	current := Message{Role: "user", Content: question}

	if !topic.established {
		if !needsFullContext {
			return []Message{current}
		}
		return append(append([]Message(nil), history...), current)
	}

	if relevance < 0.3 {
		return []Message{current}
	}

	switch {
	case topic.confidence > 0.8:
		return append(lastN(relevantOnly(history), 8), current)
	case topic.confidence > 0.6:
		return append(lastN(relevantOnly(history), 12), current)
	default:
		return append(append([]Message(nil), history...), current)
	}
}

// relevantOnly drops tool-role scaffolding messages so "last N relevant
// messages" reflects user/assistant turns, matching the spec's plain-
// English description of the window (tool messages are optional
// persistence per §9 design note (d); this analyzer windows over whichever
// messages the caller supplied).
func relevantOnly(history []Message) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == "tool" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func lastN(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return append([]Message(nil), msgs...)
	}
	return append([]Message(nil), msgs[len(msgs)-n:]...)
}

// --- classification ---------------------------------------------------

type classifyResult struct {
	needsFullContext bool
	confidence       float64
	reasoning        string
	method           Method
	questionType     string
}

func (a *Analyzer) classify(ctx context.Context, question string, history []Message) classifyResult {
	if a.decision != nil {
		if r, err := a.classifyLLM(ctx, question, history); err == nil {
			return r
		} else {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_analyzer_llm_classify_failed")
		}
	}
	return classifyPattern(question)
}

type llmClassifyReply struct {
	NeedsFullContext bool    `json:"needs_full_context"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	QuestionType     string  `json:"question_type"`
}

func (a *Analyzer) classifyLLM(ctx context.Context, question string, history []Message) (classifyResult, error) {
	ctx, cancel := decision.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are a context relevance analyzer. Analyze if the current user question requires the full chat conversation history to answer correctly, or if it can be answered independently.

CURRENT QUESTION: %q

RECENT CHAT CONTEXT:
%s

Respond with ONLY a JSON object: {"needs_full_context": bool, "confidence": 0.0-1.0, "reasoning": "...", "question_type": "standalone"|"context_dependent"}`,
		question, summarize(history))

	raw, err := a.decision.Complete(ctx, prompt)
	if err != nil {
		return classifyResult{}, err
	}
	var reply llmClassifyReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return classifyResult{}, fmt.Errorf("malformed context-analysis JSON: %w", err)
	}
	return classifyResult{
		needsFullContext: reply.NeedsFullContext,
		confidence:       clamp01(reply.Confidence),
		reasoning:        reply.Reasoning,
		method:           MethodLLM,
		questionType:     reply.QuestionType,
	}, nil
}

// classifyPattern ports `_pattern_analyze_context`: count standalone vs.
// context-dependent pattern hits; a tie defaults to context-dependent for
// safety (§4.4 step 2).
func classifyPattern(question string) classifyResult {
	lower := strings.ToLower(question)
	standaloneScore := countMatches(standalonePatterns, lower)
	contextScore := countMatches(contextDependentPatterns, lower)

	switch {
	case standaloneScore > contextScore:
		conf := float64(standaloneScore) / float64(standaloneScore+contextScore+1)
		if conf > 0.8 {
			conf = 0.8
		}
		return classifyResult{
			needsFullContext: false,
			confidence:       conf,
			reasoning:        fmt.Sprintf("standalone patterns detected: %d, context patterns: %d", standaloneScore, contextScore),
			method:           MethodPattern,
			questionType:     "standalone",
		}
	case contextScore > standaloneScore:
		conf := float64(contextScore) / float64(standaloneScore+contextScore+1)
		if conf > 0.8 {
			conf = 0.8
		}
		return classifyResult{
			needsFullContext: true,
			confidence:       conf,
			reasoning:        fmt.Sprintf("context-dependent patterns detected: %d, standalone patterns: %d", contextScore, standaloneScore),
			method:           MethodPattern,
			questionType:     "context_dependent",
		}
	default:
		return classifyResult{
			needsFullContext: true,
			confidence:       0.5,
			reasoning:        "no clear patterns detected - using context for safety",
			method:           MethodPattern,
			questionType:     "context_dependent",
		}
	}
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

// --- topic establishment -----------------------------------------------

type topicResult struct {
	established bool
	topic       string
	confidence  float64
}

func (a *Analyzer) detectTopic(ctx context.Context, history []Message) topicResult {
	if a.decision != nil {
		if r, err := a.detectTopicLLM(ctx, history); err == nil {
			return r
		} else {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_analyzer_llm_topic_failed")
		}
	}
	return detectTopicHeuristic(history)
}

type llmTopicReply struct {
	TopicEstablished bool    `json:"topic_established"`
	MainTopic        string  `json:"main_topic"`
	Confidence       float64 `json:"confidence"`
}

func (a *Analyzer) detectTopicLLM(ctx context.Context, history []Message) (topicResult, error) {
	ctx, cancel := decision.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Given this conversation history, has a single topic been established across multiple turns?

%s

Respond with ONLY a JSON object: {"topic_established": bool, "main_topic": "...", "confidence": 0.0-1.0}`, summarize(history))

	raw, err := a.decision.Complete(ctx, prompt)
	if err != nil {
		return topicResult{}, err
	}
	var reply llmTopicReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return topicResult{}, fmt.Errorf("malformed topic-detection JSON: %w", err)
	}
	return topicResult{established: reply.TopicEstablished, topic: reply.MainTopic, confidence: clamp01(reply.Confidence)}, nil
}

// detectTopicHeuristic is the "≥ 6 messages" fallback named in §4.4 step 3.
func detectTopicHeuristic(history []Message) topicResult {
	if len(history) < 6 {
		return topicResult{established: false}
	}
	return topicResult{established: true, topic: strings.Join(topicKeywords(history, 3), ", "), confidence: 0.6}
}

// --- relevance -----------------------------------------------------------

func (a *Analyzer) relevance(ctx context.Context, question string, topic topicResult, needsFullContext bool) float64 {
	if !topic.established {
		return 1
	}
	if a.decision != nil {
		if v, err := a.relevanceLLM(ctx, question, topic.topic); err == nil {
			return v
		} else {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_analyzer_llm_relevance_failed")
		}
	}
	// Fallback (§4.4 step 4): 0.2 if standalone pattern, else 0.8.
	lower := strings.ToLower(question)
	if countMatches(standalonePatterns, lower) > 0 {
		return 0.2
	}
	return 0.8
}

type llmRelevanceReply struct {
	Relevance float64 `json:"relevance"`
}

func (a *Analyzer) relevanceLLM(ctx context.Context, question, topic string) (float64, error) {
	ctx, cancel := decision.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`On a scale of 0.0 to 1.0, how relevant is the question %q to the established conversation topic %q?

Respond with ONLY a JSON object: {"relevance": 0.0-1.0}`, question, topic)

	raw, err := a.decision.Complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	var reply llmRelevanceReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return 0, fmt.Errorf("malformed relevance JSON: %w", err)
	}
	return clamp01(reply.Relevance), nil
}

// --- new-chat suggestion --------------------------------------------------

// suggestNewChat implements §4.4 step 6, ported from
// `_analyze_new_chat_suggestion`.
func suggestNewChat(question string, history []Message, classification classifyResult, topic topicResult) (bool, string) {
	if len(history) < 4 || classification.needsFullContext {
		return false, ""
	}

	recent := history
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}

	ongoing := false
	var topicWords []string
	for _, m := range recent {
		lower := strings.ToLower(m.Content)
		for _, ind := range conversationIndicators {
			if strings.Contains(lower, ind) {
				ongoing = true
				break
			}
		}
		for _, w := range strings.Fields(lower) {
			w = trimNonAlpha(w)
			if len(w) > 4 && isAlpha(w) {
				topicWords = append(topicWords, w)
			}
		}
	}

	if ongoing && classification.confidence > 0.6 {
		recentTopics := topicWords
		if len(recentTopics) > 10 {
			recentTopics = recentTopics[len(recentTopics)-10:]
		}
		overlap := false
		lowerQuestion := strings.ToLower(question)
		for _, w := range recentTopics {
			if strings.Contains(lowerQuestion, w) {
				overlap = true
				break
			}
		}
		if !overlap {
			qType := classification.questionType
			if qType == "" {
				qType = "standalone"
			}
			mention := "previous topics"
			if n := len(topicWords); n > 0 {
				start := n - 3
				if start < 0 {
					start = 0
				}
				mention = strings.Join(topicWords[start:], ", ")
			}
			return true, fmt.Sprintf("this %s question seems unrelated to the ongoing conversation about %s", qType, mention)
		}
	}

	lowerQuestion := strings.ToLower(question)
	interrupts := false
	for _, p := range standaloneInterruptionPatterns {
		if p.MatchString(lowerQuestion) {
			interrupts = true
			break
		}
	}
	if interrupts && len(history) > 8 && classification.confidence > 0.7 {
		qType := classification.questionType
		if qType == "" {
			qType = "standalone"
		}
		return true, fmt.Sprintf("this appears to be a %s question that doesn't relate to your current conversation", qType)
	}

	return false, ""
}

func topicKeywords(history []Message, n int) []string {
	var words []string
	for _, m := range history {
		for _, w := range strings.Fields(strings.ToLower(m.Content)) {
			w = trimNonAlpha(w)
			if len(w) > 4 && isAlpha(w) {
				words = append(words, w)
			}
		}
	}
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return words
}

func trimNonAlpha(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func summarize(history []Message) string {
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if len(recent) == 0 {
		return "No recent context"
	}
	var sb strings.Builder
	for _, m := range recent {
		content := m.Content
		if len(content) > 100 {
			content = content[:100] + "..."
		}
		fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(m.Role), content)
	}
	return sb.String()
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
