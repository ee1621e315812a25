// Package search implements the two search tools the Search Manager rotates
// across (§4.1, §4.2): brave_search and serper_search.
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

// braveEndpoint is a var (not a const) so tests can point it at an
// httptest.Server.
var braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveTool implements tools.Tool for the Brave Search API.
type BraveTool struct {
	APIKey string
	Client *http.Client
}

func (t *BraveTool) Name() string        { return "brave_search" }
func (t *BraveTool) Description() string { return "Search the web using the Brave Search API." }

func (t *BraveTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "search query"},
				"num_results": map[string]any{"type": "integer", "description": "number of results to return"},
			},
			"required": []string{"query"},
		},
	}
}

type braveArgs struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
}

// Call implements the brave_search contract: a formatted multi-result block
// or an error string prefixed with "Brave API error" / "Brave search
// failed", per §4.1's failure semantics.
func (t *BraveTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	var args braveArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("brave_search: invalid arguments: %w", err)
		}
	}
	if args.NumResults <= 0 {
		args.NumResults = 3
	}
	if strings.TrimSpace(t.APIKey) == "" {
		return "Brave search is not configured.", nil
	}

	q := url.Values{}
	q.Set("q", args.Query)
	q.Set("count", strconv.Itoa(args.NumResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("Brave search failed: %v", err), nil
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.APIKey)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("Brave search failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Brave API error %d: %s", resp.StatusCode, string(body)), nil
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Sprintf("Brave search failed: could not parse response: %v", err), nil
	}

	results := data.Web.Results
	if len(results) > args.NumResults {
		results = results[:args.NumResults]
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\n%s\n\n", i+1, stripMarkup(r.Title), r.URL, stripMarkup(r.Description))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
