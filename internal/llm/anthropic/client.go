// Package anthropic implements the llm.Provider contract over
// github.com/anthropics/anthropic-sdk-go (Provider B). Per §4.5, Provider B
// does not run the shared agentic tool loop by default: tool schemas are
// still advertised to the model, but a requested tool call is neither
// dispatched nor returned: the response carries only the model's text, or
// the shared fallback text when the model produced none.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"turncore/internal/config"
	"turncore/internal/llm"
	"turncore/internal/observability"
	"turncore/internal/toolloop"
)

const defaultMaxTokens int64 = 1024

// Client adapts llm.Provider to the Anthropic Messages API.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// New builds an Anthropic client. cfg.APIKey may be empty; callers are
// expected to check config.ProviderConfig.Enabled() before registering this
// adapter.
func New(cfg config.ProviderConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

// Generate implements llm.Provider with a single Messages.New round trip; no
// tool dispatch loop runs for this provider.
func (c *Client) Generate(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Response, error) {
	if len(msgs) == 0 {
		return llm.ReadyToChatResponse(), nil
	}

	effectiveModel := c.pickModel(model)

	sys, converted, err := adaptMessages(msgs)
	if err != nil {
		return errResponse(err), nil
	}
	toolDefs, err := adaptTools(toolSchemas)
	if err != nil {
		return errResponse(err), nil
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(effectiveModel),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: c.maxTokens,
	}

	ctx, span := llm.StartRequestSpan(ctx, "anthropic.Generate", effectiveModel, len(toolSchemas), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", elapsed).Msg("anthropic_generate_error")
		return errResponse(err), nil
	}

	llm.LogRedactedResponse(ctx, resp)

	text, toolCalls := messageFromResponse(resp)
	if strings.TrimSpace(text) == "" && len(toolCalls) > 0 {
		// A tool-only turn with nothing dispatched back to the model: surface
		// the same fallback text the looping providers use on exhaustion so
		// downstream formatting stays uniform.
		text = toolloop.FallbackText
	}

	promptTokens := int(resp.Usage.InputTokens)
	completionTokens := int(resp.Usage.OutputTokens)
	metrics := llm.ResponseMetrics{
		ElapsedSeconds: elapsed.Seconds(),
		InputTokens:    promptTokens,
		OutputTokens:   completionTokens,
		TotalTokens:    promptTokens + completionTokens,
	}
	llm.RecordTokenAttributes(span, promptTokens, completionTokens, metrics.TotalTokens)

	log.Debug().Str("model", effectiveModel).Dur("duration", elapsed).
		Int("prompt_tokens", promptTokens).Int("completion_tokens", completionTokens).
		Msg("anthropic_generate_ok")

	return llm.Response{Text: text, Metrics: metrics}, nil
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func errResponse(err error) llm.Response {
	return llm.Response{
		Text:    fmt.Sprintf("the model provider returned an error: %v", err),
		Metrics: llm.ResponseMetrics{Estimated: []string{"input_tokens", "output_tokens", "total_tokens"}},
	}
}

func adaptTools(schemas []llm.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	if len(schemas) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("anthropic provider: tool name required")
		}
		schema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range s.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"]; ok {
			delete(extras, "required")
			switch v := req.(type) {
			case []string:
				schema.Required = v
			case []any:
				for _, item := range v {
					if str, ok := item.(string); ok {
						schema.Required = append(schema.Required, str)
					}
				}
			}
		}
		delete(extras, "type")
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}

		p := anthropic.ToolParam{Name: name, InputSchema: schema}
		if desc := strings.TrimSpace(s.Description); desc != "" {
			p.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &p})
	}
	return out, nil
}

func adaptMessages(msgs []llm.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	if len(msgs) == 0 {
		return nil, nil, fmt.Errorf("messages required")
	}
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "system":
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case "user":
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "assistant":
			blocks := []anthropic.ContentBlockParamUnion{}
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, decodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			id := strings.TrimSpace(m.ToolID)
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		default:
			return nil, nil, fmt.Errorf("unsupported role for anthropic provider: %s", m.Role)
		}
	}
	return system, out, nil
}

func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}

func messageFromResponse(resp *anthropic.Message) (string, []llm.ToolCall) {
	if resp == nil {
		return "", nil
	}
	var sb strings.Builder
	var calls []llm.ToolCall
	callIdx := 0

	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			callIdx++
			id := strings.TrimSpace(v.ID)
			if id == "" {
				id = fmt.Sprintf("call-%d", callIdx)
			}
			args := v.Input
			if len(args) == 0 {
				if b, err := json.Marshal(v.Input); err == nil {
					args = b
				}
			}
			calls = append(calls, llm.ToolCall{Name: v.Name, Args: args, ID: id})
		}
	}
	return sb.String(), calls
}
