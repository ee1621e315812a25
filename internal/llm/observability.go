package llm

import (
	"context"
	"encoding/json"
	"sync"

	"turncore/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu                   sync.RWMutex
	enablePayloadLogging = false
	truncateBytes        = 0 // 0 means no truncation
)

// ConfigureLogging sets global behavior for prompt/response payload logging.
// Call this once at startup with values from the main config.
func ConfigureLogging(enable bool, truncate int) {
	mu.Lock()
	defer mu.Unlock()
	enablePayloadLogging = enable
	truncateBytes = truncate
}

func shouldLog() (bool, int) {
	mu.RLock()
	defer mu.RUnlock()
	return enablePayloadLogging, truncateBytes
}

// StartRequestSpan starts a tracer span for a provider adapter request and
// sets the model, tool-count and message-count attributes. The Router,
// Search Manager, Context Analyzer and tool dispatch do not call it.
func StartRequestSpan(ctx context.Context, operation string, model string, tools int, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.tools", tools),
		attribute.Int("llm.messages", messages),
	)
	return ctx, span
}

// LogRedactedPrompt logs a redacted copy of the outbound messages at debug
// level. No-op unless payload logging is enabled (off by default, since
// prompts routinely carry user PII via the UserProfile context block).
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	logRedacted(ctx, "llm_request", "prompt", msgs)
}

// LogRedactedResponse logs a redacted copy of a raw provider response payload
// at debug level. No-op unless payload logging is enabled.
func LogRedactedResponse(ctx context.Context, resp any) {
	logRedacted(ctx, "llm_response", "response", resp)
}

func logRedacted(ctx context.Context, event, field string, payload any) {
	ok, limit := shouldLog()
	if !ok {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	log := observability.LoggerWithTrace(ctx)
	if limit > 0 && len(red) > limit {
		red = append(red[:limit:limit], []byte("...truncated")...)
	}
	log.Debug().RawJSON(field, red).Msg(event)
}

// RecordTokenAttributes sets token-count attributes on the active span,
// matching what every adapter reports after a successful call.
func RecordTokenAttributes(span trace.Span, promptTokens, completionTokens, totalTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
		attribute.Int("llm.total_tokens", totalTokens),
	)
}
