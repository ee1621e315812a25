// Package openai implements the llm.Provider contract over
// github.com/openai/openai-go/v2, serving both Provider C (OpenAI) and
// Provider D (xAI, via base URL + model override) since both speak the
// OpenAI chat-completions wire format.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"turncore/internal/config"
	"turncore/internal/llm"
	"turncore/internal/observability"
	"turncore/internal/toolloop"
	"turncore/internal/tools"
)

// Client adapts llm.Provider and llm.Stepper to the OpenAI-compatible chat
// completions API.
type Client struct {
	sdk      sdk.Client
	model    string
	registry tools.Registry
	maxSteps int
}

// New builds a Client. cfg.BaseURL may be empty (defaults to the OpenAI
// SDK's built-in endpoint) or point at an OpenAI-compatible host such as
// xAI's API.
func New(cfg config.ProviderConfig, httpClient *http.Client, registry tools.Registry, maxSteps int) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if maxSteps <= 0 {
		maxSteps = toolloop.DefaultMaxSteps
	}
	return &Client{
		sdk:      sdk.NewClient(opts...),
		model:    cfg.Model,
		registry: registry,
		maxSteps: maxSteps,
	}
}

// Generate implements llm.Provider by driving Step through the shared
// agentic tool loop (§4.5).
func (c *Client) Generate(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Response, error) {
	if len(msgs) == 0 {
		return llm.ReadyToChatResponse(), nil
	}
	resp := toolloop.Run(ctx, c, c.registry, msgs, toolSchemas, c.pickModel(model), c.maxSteps)
	return resp, nil
}

// Step implements llm.Stepper: one raw chat-completions round trip.
func (c *Client) Step(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Message, llm.ResponseMetrics, error) {
	if len(msgs) == 0 {
		msg, metrics := llm.ReadyToChatMessage()
		return msg, metrics, nil
	}
	effectiveModel := c.pickModel(model)

	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(effectiveModel)}
	params.Messages = AdaptMessages(msgs)
	if len(toolSchemas) > 0 {
		params.Tools = AdaptSchemas(toolSchemas)
	}

	ctx, span := llm.StartRequestSpan(ctx, "openai.Step", effectiveModel, len(toolSchemas), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", elapsed).Msg("openai_step_error")
		return llm.Message{}, llm.ResponseMetrics{ElapsedSeconds: elapsed.Seconds()}, err
	}

	llm.LogRedactedResponse(ctx, comp.Choices)

	metrics := llm.ResponseMetrics{
		ElapsedSeconds: elapsed.Seconds(),
		InputTokens:    int(comp.Usage.PromptTokens),
		OutputTokens:   int(comp.Usage.CompletionTokens),
		TotalTokens:    int(comp.Usage.TotalTokens),
	}
	if metrics.TotalTokens == 0 {
		metrics.Estimated = []string{"input_tokens", "output_tokens", "total_tokens"}
	}
	llm.RecordTokenAttributes(span, metrics.InputTokens, metrics.OutputTokens, metrics.TotalTokens)

	if len(comp.Choices) == 0 {
		log.Warn().Str("model", effectiveModel).Msg("openai_step_no_choices")
		return llm.Message{Role: "assistant"}, metrics, nil
	}

	choice := comp.Choices[0].Message
	out := llm.Message{Role: "assistant", Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			if isEmptyArgs(v.Function.Arguments) {
				log.Warn().Str("tool", v.Function.Name).Str("id", v.ID).Msg("skipping tool call with empty arguments")
				continue
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: v.Function.Name,
				Args: json.RawMessage(v.Function.Arguments),
				ID:   v.ID,
			})
		case sdk.ChatCompletionMessageCustomToolCall:
			if isEmptyArgs(v.Custom.Input) {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: v.Custom.Name,
				Args: json.RawMessage(v.Custom.Input),
				ID:   v.ID,
			})
		}
	}

	if metrics.TotalTokens == 0 {
		text := out.Content
		metrics.InputTokens = llm.EstimateTokensForMessages(msgs)
		metrics.OutputTokens = llm.EstimateTokens(text)
		metrics.TotalTokens = metrics.InputTokens + metrics.OutputTokens
	}

	log.Debug().Str("model", effectiveModel).Dur("duration", elapsed).Msg("openai_step_ok")
	return out, metrics, nil
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func isEmptyArgs(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return trimmed == "" || trimmed == "{}" || trimmed == "null"
}
