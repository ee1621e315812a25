// Package decision implements the shared "decision model" client (§9
// GLOSSARY): a small, low-temperature, JSON-constrained model call reused by
// the Router (§4.3), Context Analyzer (§4.4), and Search Manager's quality
// rater (§4.2). Centralizing it here gives the three callers "one point of
// tuning for 'good enough' answers" (§4.2 Rationale).
package decision

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"turncore/internal/config"
)

// Client issues a single JSON-constrained completion against the decision
// model. Implementations never retry internally; callers apply their own
// timeout (§5: Router LLM ~10s, quality rating ~10s).
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiClient adapts Client to google.golang.org/genai, mirroring the
// Python original's low-temperature, JSON-mime-type configuration
// (`llm_intelligent_router.py`'s `generation_config`).
type GeminiClient struct {
	client *genai.Client
	model  string
}

// New builds a GeminiClient. cfg.APIKey may be empty; callers should check
// config.ProviderConfig.Enabled() first and fall back to a nil Client
// (every caller in this module tolerates a nil/erroring decision client by
// falling back to its rule-based path).
func New(cfg config.ProviderConfig, httpClient *http.Client) (*GeminiClient, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash-lite"
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
		return nil, fmt.Errorf("init decision model client: %w", err)
	}
	return &GeminiClient{client: c, model: model}, nil
}

// Complete sends prompt as a single user turn with temperature 0.1 and
// response_mime_type "application/json", per the original's routing/context/
// quality-rating prompts, and returns the raw text reply for the caller to
// parse strictly.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.1)
	maxTokens := int32(400)
	content := genai.NewContentFromParts([]*genai.Part{{Text: prompt}}, genai.RoleUser)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		MaxOutputTokens:  maxTokens,
		ResponseMIMEType: "application/json",
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{content}, cfg)
	if err != nil {
		return "", fmt.Errorf("decision model request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("decision model returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("decision model returned empty text")
	}
	return text, nil
}

// WithTimeout wraps ctx with a deadline, matching the per-call timeouts in
// §5 (Router LLM ~10s, quality rating ~10s). Call sites own the cancel func.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
