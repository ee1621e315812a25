// Package local implements Provider E (spec.md:130): an adapter over a
// local, Ollama-compatible model server's /api/chat endpoint. Grounded on
// haasonsaas-nexus's ollama_discovery.go, which talks to the same server
// with plain net/http rather than a dedicated SDK (none of the example
// repos depend on one).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"turncore/internal/config"
	"turncore/internal/llm"
	"turncore/internal/observability"
	"turncore/internal/toolloop"
	"turncore/internal/tools"
)

// Client adapts llm.Provider/llm.Stepper to a local chat server's /api/chat
// endpoint (Ollama wire shape: {model, messages, stream, keep_alive}).
type Client struct {
	http      *http.Client
	baseURL   string
	model     string
	keepAlive string
	registry  tools.Registry
	maxSteps  int
}

// New builds a Client. cfg.Enabled() must be checked by callers before
// wiring this provider in (an empty BaseURL means "no local server
// configured" per config.LocalProviderConfig.Enabled).
func New(cfg config.LocalProviderConfig, httpClient *http.Client, registry tools.Registry, maxSteps int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if maxSteps <= 0 {
		maxSteps = toolloop.DefaultMaxSteps
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:     cfg.Model,
		keepAlive: cfg.KeepAlive,
		registry:  registry,
		maxSteps:  maxSteps,
	}
}

// Generate implements llm.Provider by driving Step through the shared
// agentic tool loop (§4.5). Most local servers support the same
// tools-in-messages convention as the hosted providers; the loop degrades
// gracefully to a single turn if the model never requests a tool call.
func (c *Client) Generate(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Response, error) {
	if len(msgs) == 0 {
		return llm.ReadyToChatResponse(), nil
	}
	resp := toolloop.Run(ctx, c, c.registry, msgs, toolSchemas, c.pickModel(model), c.maxSteps)
	return resp, nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Tools     []chatTool    `json:"tools,omitempty"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatToolCall struct {
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type chatResponse struct {
	Message struct {
		Role      string         `json:"role"`
		Content   string         `json:"content"`
		ToolCalls []chatToolCall `json:"tool_calls"`
	} `json:"message"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
	Done            bool `json:"done"`
}

// Step implements llm.Stepper: one raw /api/chat round trip with
// stream:false, reporting the server's own prompt_eval_count/eval_count
// when present (spec.md:130, "may report its own prompt/eval counts").
func (c *Client) Step(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Message, llm.ResponseMetrics, error) {
	if len(msgs) == 0 {
		msg, metrics := llm.ReadyToChatMessage()
		return msg, metrics, nil
	}
	effectiveModel := c.pickModel(model)

	req := chatRequest{
		Model:     effectiveModel,
		Messages:  adaptMessages(msgs),
		Stream:    false,
		KeepAlive: c.keepAlive,
		Tools:     adaptSchemas(toolSchemas),
	}

	ctx, span := llm.StartRequestSpan(ctx, "local.Step", effectiveModel, len(toolSchemas), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	body, err := json.Marshal(req)
	if err != nil {
		span.RecordError(err)
		return llm.Message{}, llm.ResponseMetrics{}, fmt.Errorf("local provider: encode request: %w", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return llm.Message{}, llm.ResponseMetrics{}, fmt.Errorf("local provider: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", elapsed).Msg("local_step_error")
		return llm.Message{}, llm.ResponseMetrics{ElapsedSeconds: elapsed.Seconds()}, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		return llm.Message{}, llm.ResponseMetrics{ElapsedSeconds: elapsed.Seconds()}, fmt.Errorf("local provider: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		err := fmt.Errorf("local provider: server returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(raw)))
		span.RecordError(err)
		log.Error().Int("status", httpResp.StatusCode).Msg("local_step_bad_status")
		return llm.Message{}, llm.ResponseMetrics{ElapsedSeconds: elapsed.Seconds()}, err
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		span.RecordError(err)
		return llm.Message{}, llm.ResponseMetrics{ElapsedSeconds: elapsed.Seconds()}, fmt.Errorf("local provider: decode response: %w", err)
	}

	llm.LogRedactedResponse(ctx, decoded.Message)

	out := llm.Message{Role: "assistant", Content: decoded.Message.Content}
	for _, tc := range decoded.Message.ToolCalls {
		args, _ := json.Marshal(tc.Function.Arguments)
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{Name: tc.Function.Name, Args: args})
	}

	metrics := llm.ResponseMetrics{
		ElapsedSeconds: elapsed.Seconds(),
		InputTokens:    decoded.PromptEvalCount,
		OutputTokens:   decoded.EvalCount,
		TotalTokens:    decoded.PromptEvalCount + decoded.EvalCount,
	}
	if metrics.TotalTokens == 0 {
		metrics.InputTokens = llm.EstimateTokensForMessages(msgs)
		metrics.OutputTokens = llm.EstimateTokens(out.Content)
		metrics.TotalTokens = metrics.InputTokens + metrics.OutputTokens
		metrics.Estimated = []string{"input_tokens", "output_tokens", "total_tokens"}
	}
	llm.RecordTokenAttributes(span, metrics.InputTokens, metrics.OutputTokens, metrics.TotalTokens)

	log.Debug().Str("model", effectiveModel).Dur("duration", elapsed).Msg("local_step_ok")
	return out, metrics, nil
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func adaptMessages(msgs []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(tc.Args, &args)
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{Function: chatFunctionCall{Name: tc.Name, Arguments: args}})
		}
		out = append(out, cm)
	}
	return out
}

func adaptSchemas(schemas []llm.ToolSchema) []chatTool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
