// Package toolloop implements the agentic tool loop shared by every
// function-calling-capable provider adapter (§4.5): send history, dispatch
// any requested tool calls against the registry, append the results, and
// repeat up to a bounded number of iterations.
package toolloop

import (
	"context"
	"encoding/json"
	"fmt"

	"turncore/internal/llm"
	"turncore/internal/observability"
	"turncore/internal/tools"
)

// FallbackText is returned when the loop exhausts its iteration cap without
// the model producing a pure-text turn.
const FallbackText = "I couldn't complete the request with the available tools."

// DefaultMaxSteps is the default iteration cap (§4.5, §9 open question b).
const DefaultMaxSteps = 3

// Run drives step across up to maxSteps iterations, dispatching any tool
// calls the model requests against registry and feeding the results back in
// as tool turns. It never returns an error: every failure mode (a step
// error, an unknown tool, an exhausted loop) is folded into the returned
// llm.Response per the error-handling taxonomy in §7.
func Run(ctx context.Context, step llm.Stepper, registry tools.Registry, msgs []llm.Message, schemas []llm.ToolSchema, model string, maxSteps int) llm.Response {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	log := observability.LoggerWithTrace(ctx)

	history := append([]llm.Message(nil), msgs...)
	var lastMetrics llm.ResponseMetrics

	for i := 0; i < maxSteps; i++ {
		turn, metrics, err := step.Step(ctx, history, schemas, model)
		lastMetrics = metrics
		if err != nil {
			log.Error().Err(err).Int("step", i).Msg("toolloop_step_error")
			return llm.Response{
				Text:    fmt.Sprintf("the model provider returned an error: %v", err),
				Metrics: metrics,
			}
		}

		if len(turn.ToolCalls) == 0 {
			return llm.Response{Text: turn.Content, Metrics: metrics}
		}

		history = append(history, turn)
		for _, call := range turn.ToolCalls {
			output := dispatch(ctx, registry, call)
			history = append(history, llm.Message{
				Role:    "tool",
				Content: output,
				ToolID:  call.ID,
			})
		}
	}

	log.Warn().Int("max_steps", maxSteps).Msg("toolloop_exhausted")
	return llm.Response{Text: FallbackText, Metrics: lastMetrics}
}

// dispatch invokes the named tool against registry, rendering unknown-tool
// and dispatch-error conditions as the "invariant" and "semantic" error
// classes from §7: short notices folded back into the conversation rather
// than raised, so the model can see and react to them.
func dispatch(ctx context.Context, registry tools.Registry, call llm.ToolCall) string {
	if registry == nil {
		return fmt.Sprintf(`{"error":"unknown tool %q: no tool registry configured"}`, call.Name)
	}
	raw := call.Args
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	payload, err := registry.Dispatch(ctx, call.Name, raw)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(payload)
}
