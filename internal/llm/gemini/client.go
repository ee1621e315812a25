// Package gemini implements the llm.Provider contract over
// google.golang.org/genai (Provider A in the spec: tools exposed as
// function_declarations, usage metadata preferred when present).
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"turncore/internal/config"
	"turncore/internal/llm"
	"turncore/internal/observability"
	"turncore/internal/toolloop"
	"turncore/internal/tools"
)

// Client adapts both llm.Provider and llm.Stepper to the Gemini API. Generate
// drives Step through the shared agentic tool loop (§4.5).
type Client struct {
	client   *genai.Client
	model    string
	registry tools.Registry
	maxSteps int
}

// New builds a Gemini client. cfg.APIKey may be empty; callers are expected
// to check config.ProviderConfig.Enabled() before registering this adapter.
// registry may be nil, in which case tool calls render as "not configured".
func New(cfg config.ProviderConfig, httpClient *http.Client, registry tools.Registry, maxSteps int) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := cfg.Timeout
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	c, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	if maxSteps <= 0 {
		maxSteps = toolloop.DefaultMaxSteps
	}
	return &Client{client: c, model: model, registry: registry, maxSteps: maxSteps}, nil
}

// Generate implements llm.Provider by driving Step through the shared
// agentic tool loop.
func (c *Client) Generate(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Response, error) {
	if len(msgs) == 0 {
		return llm.ReadyToChatResponse(), nil
	}
	resp := toolloop.Run(ctx, c, c.registry, msgs, toolSchemas, c.pickModel(model), c.maxSteps)
	return resp, nil
}

// Step implements llm.Stepper: one raw Gemini round trip.
func (c *Client) Step(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Message, llm.ResponseMetrics, error) {
	if len(msgs) == 0 {
		msg, metrics := llm.ReadyToChatMessage()
		return msg, metrics, nil
	}
	effectiveModel := c.pickModel(model)

	ctx, span := llm.StartRequestSpan(ctx, "gemini.Step", effectiveModel, len(toolSchemas), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()

	contents, err := toContents(msgs)
	if err != nil {
		span.RecordError(err)
		return llm.Message{}, llm.ResponseMetrics{}, err
	}
	toolDecls, toolCfg, err := adaptTools(toolSchemas)
	if err != nil {
		span.RecordError(err)
		return llm.Message{}, llm.ResponseMetrics{}, err
	}

	cfg := &genai.GenerateContentConfig{}
	if toolDecls != nil {
		cfg.Tools = toolDecls
		cfg.ToolConfig = toolCfg
	}

	resp, err := c.client.Models.GenerateContent(ctx, effectiveModel, contents, cfg)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", elapsed).Msg("gemini_step_error")
		return llm.Message{}, llm.ResponseMetrics{ElapsedSeconds: elapsed.Seconds()}, err
	}

	llm.LogRedactedResponse(ctx, resp)

	text, metrics, err := messageFromResponse(resp, elapsed)
	if err != nil {
		span.RecordError(err)
		return llm.Message{}, metrics, err
	}

	llm.RecordTokenAttributes(span, metrics.InputTokens, metrics.OutputTokens, metrics.TotalTokens)
	log.Debug().Str("model", effectiveModel).Dur("duration", elapsed).Msg("gemini_step_ok")

	calls := ToolCallsFromResponse(resp)
	msg := llm.Message{Role: "assistant", Content: text, ToolCalls: calls}
	return msg, metrics, nil
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func toContents(msgs []llm.Message) ([]*genai.Content, error) {
	toolNamesByID := make(map[string]string)
	var lastFuncName string
	contents := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "", "user", "system":
			role = genai.RoleUser
		case "assistant":
			role = genai.RoleModel
			for _, tc := range m.ToolCalls {
				if tc.ID != "" && tc.Name != "" {
					toolNamesByID[tc.ID] = tc.Name
				}
				if strings.TrimSpace(tc.Name) != "" {
					lastFuncName = tc.Name
				}
			}
		case "tool":
			name := toolNamesByID[m.ToolID]
			if name == "" {
				name = lastFuncName
			}
			if name == "" {
				name = "tool_response"
			}
			respMap := map[string]any{}
			if trimmed := strings.TrimSpace(m.Content); trimmed != "" {
				if err := json.Unmarshal([]byte(trimmed), &respMap); err != nil {
					respMap = map[string]any{"output": m.Content}
				}
			}
			part := genai.NewPartFromFunctionResponse(name, respMap)
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
			continue
		default:
			return nil, fmt.Errorf("unsupported role for gemini provider: %s", m.Role)
		}

		text := m.Content
		if role == genai.RoleUser && strings.ToLower(strings.TrimSpace(m.Role)) == "system" {
			text = "[system] " + text
		}

		parts := []*genai.Part{}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, &genai.Part{Text: text})
		}
		if role == genai.RoleModel {
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if len(tc.Args) > 0 {
					_ = json.Unmarshal(tc.Args, &args)
				}
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("messages required")
	}
	return contents, nil
}

func messageFromResponse(resp *genai.GenerateContentResponse, elapsed time.Duration) (string, llm.ResponseMetrics, error) {
	if resp == nil {
		return "", llm.ResponseMetrics{}, fmt.Errorf("nil response from gemini provider")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", llm.ResponseMetrics{}, fmt.Errorf("request blocked by gemini: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", llm.ResponseMetrics{}, fmt.Errorf("no candidates in gemini response")
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety:
		return "", llm.ResponseMetrics{}, fmt.Errorf("response blocked by safety filters")
	case genai.FinishReasonRecitation:
		return "", llm.ResponseMetrics{}, fmt.Errorf("response blocked due to recitation")
	case genai.FinishReasonMalformedFunctionCall:
		return "", llm.ResponseMetrics{}, fmt.Errorf("malformed function call generated by model")
	}

	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}

	metrics := llm.ResponseMetrics{ElapsedSeconds: elapsed.Seconds()}
	if um := resp.UsageMetadata; um != nil && (um.PromptTokenCount > 0 || um.CandidatesTokenCount > 0) {
		metrics.InputTokens = int(um.PromptTokenCount)
		metrics.OutputTokens = int(um.CandidatesTokenCount)
		metrics.TotalTokens = metrics.InputTokens + metrics.OutputTokens
	} else {
		metrics.InputTokens = llm.EstimateTokens(sb.String())
		metrics.OutputTokens = llm.EstimateTokens(sb.String())
		metrics.TotalTokens = metrics.InputTokens + metrics.OutputTokens
		metrics.Estimated = []string{"input_tokens", "output_tokens", "total_tokens"}
	}

	return sb.String(), metrics, nil
}

func adaptTools(schemas []llm.ToolSchema) ([]*genai.Tool, *genai.ToolConfig, error) {
	if len(schemas) == 0 {
		return nil, nil, nil
	}
	fd := make([]*genai.FunctionDeclaration, 0, len(schemas))
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		if strings.TrimSpace(s.Name) == "" {
			return nil, nil, fmt.Errorf("gemini provider: tool name required")
		}
		names = append(names, s.Name)
		fd = append(fd, &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: s.Parameters,
		})
	}
	sort.Strings(names)
	cfg := &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode: genai.FunctionCallingConfigModeAuto,
		},
	}
	return []*genai.Tool{{FunctionDeclarations: fd}}, cfg, nil
}

// ToolCallsFromResponse extracts the function calls requested in the last
// candidate, in order, for use by the shared agentic loop.
func ToolCallsFromResponse(resp *genai.GenerateContentResponse) []llm.ToolCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []llm.ToolCall
	callIdx := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.FunctionCall == nil {
			continue
		}
		args, _ := json.Marshal(part.FunctionCall.Args)
		callIdx++
		id := part.FunctionCall.ID
		if strings.TrimSpace(id) == "" {
			id = "call-" + strconv.Itoa(callIdx)
		}
		out = append(out, llm.ToolCall{Name: part.FunctionCall.Name, Args: args, ID: id})
	}
	return out
}
