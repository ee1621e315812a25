package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// serperEndpoint is a var (not a const) so tests can point it at an
// httptest.Server.
var serperEndpoint = "https://google.serper.dev/search"

// SerperTool implements tools.Tool for the Serper.dev Google-search proxy.
type SerperTool struct {
	APIKey string
	Client *http.Client
}

func (t *SerperTool) Name() string { return "serper_search" }
func (t *SerperTool) Description() string {
	return "Search Google via Serper.dev, surfacing featured answers and knowledge-graph highlights when present."
}

func (t *SerperTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "search query"},
				"num_results": map[string]any{"type": "integer", "description": "number of organic results to return"},
			},
			"required": []string{"query"},
		},
	}
}

type serperArgs struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
}

// Call implements the serper_search contract, including the answerBox /
// knowledgeGraph highlight blocks from the Python original.
func (t *SerperTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	var args serperArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("serper_search: invalid arguments: %w", err)
		}
	}
	if args.NumResults <= 0 {
		args.NumResults = 3
	}
	if strings.TrimSpace(t.APIKey) == "" {
		return "Serper search is not configured.", nil
	}

	q := url.Values{}
	q.Set("q", args.Query)
	q.Set("num", strconv.Itoa(args.NumResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serperEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("Serper search failed: %v", err), nil
	}
	req.Header.Set("X-API-KEY", t.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("Serper search failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Serper API error %d: %s", resp.StatusCode, string(body)), nil
	}

	var data struct {
		AnswerBox struct {
			Title   string `json:"title"`
			Answer  string `json:"answer"`
			Snippet string `json:"snippet"`
		} `json:"answerBox"`
		KnowledgeGraph struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"knowledgeGraph"`
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Sprintf("Serper search failed: could not parse response: %v", err), nil
	}

	var sb strings.Builder
	if data.AnswerBox.Title != "" || data.AnswerBox.Answer != "" || data.AnswerBox.Snippet != "" {
		fmt.Fprintf(&sb, "[Featured] %s %s %s\n\n", stripMarkup(data.AnswerBox.Title), stripMarkup(data.AnswerBox.Answer), stripMarkup(data.AnswerBox.Snippet))
	}
	if data.KnowledgeGraph.Title != "" {
		fmt.Fprintf(&sb, "[Knowledge] %s: %s\n\n", stripMarkup(data.KnowledgeGraph.Title), stripMarkup(data.KnowledgeGraph.Description))
	}
	organic := data.Organic
	if len(organic) > args.NumResults {
		organic = organic[:args.NumResults]
	}
	for i, r := range organic {
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\n%s\n\n", i+1, stripMarkup(r.Title), r.Link, stripMarkup(r.Snippet))
	}

	out := strings.TrimRight(sb.String(), "\n")
	if out == "" {
		return "No results found.", nil
	}
	return out, nil
}
