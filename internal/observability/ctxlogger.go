package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type conversationIDKey struct{}

// WithConversationID attaches a conversation identifier to ctx so every log
// line emitted further down the call chain (router, search manager, context
// analyzer, provider adapters) can be correlated back to a single turn
// without threading an explicit parameter through each layer.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	if conversationID == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationIDKey{}, conversationID)
}

func conversationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationIDKey{}).(string)
	return id, ok && id != ""
}

// LoggerWithTrace returns a zerolog.Logger enriched with trace_id/span_id
// from the active OpenTelemetry span and, when present, the conversationID
// set by WithConversationID. Every component in the turn pipeline (Router,
// Search Manager, Context Analyzer, provider adapters, the persistence
// layer) calls this instead of logging against the bare global logger.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}

	ctxFields := l.With()
	enriched := false

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ctxFields = ctxFields.Str("trace_id", sc.TraceID().String())
		enriched = true
		if sc.HasSpanID() {
			ctxFields = ctxFields.Str("span_id", sc.SpanID().String())
		}
		if sc.IsSampled() {
			ctxFields = ctxFields.Bool("trace_sampled", true)
		}
	}
	if convID, ok := conversationIDFromContext(ctx); ok {
		ctxFields = ctxFields.Str("conversation_id", convID)
		enriched = true
	}

	if enriched {
		l = ctxFields.Logger()
	}
	return &l
}
